package replay

import (
	"fmt"

	"github.com/danielpatrickdp/focus-monitor/internal/journal"
)

// uncertainSources are journal parse sources whose score was a default.
var uncertainSources = map[string]bool{
	"fallback":         true,
	"perception_error": true,
}

// #region from-journal

// FromEntries builds a fixture from journaled evaluations in ascending order.
// Step offsets are relative to the first entry and the recorded outcomes
// become the expectations, so replaying the fixture checks that the current
// classifier reproduces the session.
func FromEntries(description string, cfg FixtureConfig, entries []journal.Entry) (*Fixture, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries to export")
	}

	f := &Fixture{
		Description: description,
		Config:      cfg,
		Persona:     entries[0].Persona,
		Steps:       make([]Step, 0, len(entries)),
	}
	start := entries[0].CreatedAt
	for i, e := range entries {
		if i > 0 && e.CreatedAt.Before(entries[i-1].CreatedAt) {
			return nil, fmt.Errorf("entry %s is out of order", e.ID)
		}
		score := e.Score
		action := e.Action != ""
		f.Steps = append(f.Steps, Step{
			At:        e.CreatedAt.Sub(start),
			Score:     &score,
			Uncertain: uncertainSources[e.ParseSource],
			Expect: Expectation{
				State:  e.State,
				Action: &action,
			},
		})
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("exported fixture invalid: %w", err)
	}
	return f, nil
}

// #endregion from-journal
