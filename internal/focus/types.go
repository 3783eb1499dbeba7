package focus

import (
	"errors"
	"fmt"
	"time"
)

// #region state

// State is the coarse focus classification.
type State string

const (
	StateGreen   State = "GREEN"
	StateYellow  State = "YELLOW"
	StateRed     State = "RED"
	StateUnknown State = "UNKNOWN" // before the first evaluation reaches the status store
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateGreen, StateYellow, StateRed, StateUnknown:
		return true
	}
	return false
}

// #endregion state

// #region config

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid focus config")

// Config holds the classification thresholds and the action cooldown.
// Values are fixed for the lifetime of a Classifier.
type Config struct {
	GreenThreshold  int           // score >= this is GREEN
	YellowThreshold int           // score >= this (and < green) is YELLOW
	ActionCooldown  time.Duration // minimum gap between two corrective actions
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		GreenThreshold:  50,
		YellowThreshold: 25,
		ActionCooldown:  30 * time.Second,
	}
}

// Validate checks 0 <= yellow < green <= 100 and a positive cooldown.
func (c Config) Validate() error {
	if c.YellowThreshold < 0 || c.GreenThreshold > 100 {
		return fmt.Errorf("%w: thresholds must be within [0, 100], got yellow=%d green=%d",
			ErrInvalidConfig, c.YellowThreshold, c.GreenThreshold)
	}
	if c.YellowThreshold >= c.GreenThreshold {
		return fmt.Errorf("%w: yellow threshold %d must be below green threshold %d",
			ErrInvalidConfig, c.YellowThreshold, c.GreenThreshold)
	}
	if c.ActionCooldown <= 0 {
		return fmt.Errorf("%w: action cooldown must be positive, got %s", ErrInvalidConfig, c.ActionCooldown)
	}
	return nil
}

// #endregion config

// #region input

// Input is one evaluation request.
type Input struct {
	Score       int
	Observation string // situational context handed to the action writer
	Persona     string
	Now         time.Time

	// Uncertain marks Score as a default rather than a measurement (the
	// observation could not be parsed or perception failed). An uncertain
	// score never classifies as GREEN.
	Uncertain bool
}

// #endregion input

// #region action

// ActionSource records whether action text came from the model or a canned phrase.
type ActionSource string

const (
	ActionFromModel    ActionSource = "model"
	ActionFromFallback ActionSource = "fallback"
)

// Action is a corrective message to surface to the user.
type Action struct {
	Text   string       `json:"text"`
	Source ActionSource `json:"source"`
}

// #endregion action

// #region result

// Result is the outcome of one evaluation.
// Action is non-nil only when State is RED and the cooldown allowed it.
type Result struct {
	State         State   `json:"state"`
	PreviousState State   `json:"previous_state"`
	Score         int     `json:"focus_score"`
	Action        *Action `json:"action"`
	Persona       string  `json:"persona"`
}

// ActionText returns the action text or "" when no action was produced.
func (r Result) ActionText() string {
	if r.Action == nil {
		return ""
	}
	return r.Action.Text
}

// #endregion result

// #region session-state

// SessionState is a copy of the classifier's running memory.
// YellowEnteredAt is bookkeeping only; nothing escalates on it.
type SessionState struct {
	Current         State      `json:"state"`
	LastScore       *int       `json:"last_score"`
	YellowEnteredAt *time.Time `json:"yellow_entered_at"`
	LastActionAt    *time.Time `json:"last_action_at"`
}

// #endregion session-state
