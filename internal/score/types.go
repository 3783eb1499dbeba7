package score

// #region source

// Source tags which parse stage produced a ParsedScore.
type Source string

const (
	SourceStructured Source = "structured" // JSON object with a score field
	SourceScalar     Source = "scalar"     // first bare 1-3 digit token
	SourceFallback   Source = "fallback"   // nothing usable, default applied
)

// #endregion source

// #region constants

const (
	// DefaultScore is used when no score can be recovered. It sits exactly on
	// the default GREEN/YELLOW boundary.
	DefaultScore = 50

	// FallbackObservation is the observation text attached to fallback results.
	FallbackObservation = "Failed to parse analysis"

	// MissingObservation replaces an empty text field in a structured result.
	MissingObservation = "No details provided"

	maxObservationRunes = 200
	minScore            = 0
	maxScore            = 100
)

// #endregion constants

// #region parsed-score

// ParsedScore is the normalized output of Parse.
// Score is always within [0, 100] and Observation is never empty.
type ParsedScore struct {
	Score       int    `json:"focus_score"`
	Observation string `json:"observations"`
	Source      Source `json:"source"`
}

// #endregion parsed-score

// Uncertain reports whether Score is the default rather than a value read
// from the observation.
func (p ParsedScore) Uncertain() bool {
	return p.Source == SourceFallback
}
