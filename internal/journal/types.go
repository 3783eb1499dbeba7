package journal

import "time"

// #region entry

// Entry is one recorded evaluation.
type Entry struct {
	ID            string
	SessionID     string
	State         string
	PreviousState string
	Score         int
	ParseSource   string // structured | scalar | fallback | perception_error | uncalibrated | api
	Observation   string
	Action        string // empty when no action was produced
	ActionSource  string // model | fallback | ""
	Persona       string
	CreatedAt     time.Time
}

// #endregion entry

// #region summary

// Summary aggregates entries for inspection.
type Summary struct {
	Total        int
	ByState      map[string]int
	Actions      int
	Fallbacks    int // actions that used a canned phrase
	ParseFailure int // entries whose score came from the parser fallback
	AverageScore float64
	First        time.Time
	Last         time.Time
}

// #endregion summary
