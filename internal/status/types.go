// Package status holds the process-wide "latest known truth" shared between
// the sampling loop and status readers.
package status

import (
	"time"

	"github.com/danielpatrickdp/focus-monitor/internal/focus"
)

// DefaultCapacity bounds Events and ScoreHistory unless configured otherwise.
const DefaultCapacity = 100

// EventTimeLayout is the wall-clock format used for event timestamps.
const EventTimeLayout = "15:04:05"

// Event is one line of the status event log.
type Event struct {
	Timestamp string    `json:"timestamp"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// ScorePoint is one entry of the focus score history.
type ScorePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
}

// Analysis is the most recent perception result shown to readers.
type Analysis struct {
	FocusScore   int         `json:"focus_score"`
	State        focus.State `json:"state"`
	Observations string      `json:"observations"`
	Focused      bool        `json:"focused"`
	Source       string      `json:"source,omitempty"`
}

// Snapshot is an independent copy of the store's aggregate.
type Snapshot struct {
	State          focus.State  `json:"state"`
	Score          *int         `json:"focus_score"`
	Uptime         string       `json:"uptime"`
	StartedAt      time.Time    `json:"started_at"`
	Events         []Event      `json:"events"`
	ScoreHistory   []ScorePoint `json:"focus_history"`
	Persona        string       `json:"persona"`
	LastAction     *string      `json:"last_response"`
	SamplingActive bool         `json:"sampling_active"`
	LatestAnalysis *Analysis    `json:"latest_analysis"`
	LatestImage    string       `json:"latest_image,omitempty"`
}

// Patch is a partial update. Nil fields are left untouched; unknown JSON keys
// are dropped by decoding, which makes the set of fields the whitelist.
type Patch struct {
	State          *focus.State `json:"state,omitempty"`
	Score          *int         `json:"focus_score,omitempty"`
	Persona        *string      `json:"persona,omitempty"`
	SamplingActive *bool        `json:"sampling_active,omitempty"`
	LatestAnalysis *Analysis    `json:"latest_analysis,omitempty"`
	LatestImage    *string      `json:"latest_image,omitempty"`
	LastAction     *string      `json:"last_response,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p Patch) Empty() bool {
	return p.State == nil && p.Score == nil && p.Persona == nil && p.SamplingActive == nil &&
		p.LatestAnalysis == nil && p.LatestImage == nil && p.LastAction == nil
}
