package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/score"
)

// epoch anchors step offsets so replays are deterministic.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// sourceMeasured tags steps that carried a score instead of model text.
const sourceMeasured score.Source = "measured"

// #region types

// StepResult captures the outcome of replaying one step.
type StepResult struct {
	Index      int
	At         time.Duration
	Score      int
	Source     score.Source
	State      focus.State
	Previous   focus.State
	Action     bool
	ActionText string
	Mismatches []string
}

// Passed reports whether every expectation held.
func (r StepResult) Passed() bool {
	return len(r.Mismatches) == 0
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps int
	Failed     int
	Actions    int
	ByState    map[focus.State]int
	Final      focus.SessionState
}

// #endregion types

// #region replay

// Replay feeds every step through the parser and a fresh classifier with
// canned action text, checking expectations as it goes.
func Replay(f *Fixture) ([]StepResult, focus.SessionState) {
	classifier := focus.NewClassifier(f.Config.ToFocusConfig(), nil, zerolog.Nop())
	persona := f.Persona
	if persona == "" {
		persona = "hal"
	}

	results := make([]StepResult, 0, len(f.Steps))
	for i, step := range f.Steps {
		in := focus.Input{Persona: persona, Now: epoch.Add(step.At)}
		source := sourceMeasured
		if step.Observation != nil {
			parsed := score.Parse(*step.Observation)
			in.Score = parsed.Score
			in.Observation = parsed.Observation
			in.Uncertain = parsed.Uncertain()
			source = parsed.Source
		} else {
			in.Score = *step.Score
			in.Uncertain = step.Uncertain
		}

		res := classifier.Evaluate(context.Background(), in)
		r := StepResult{
			Index:      i,
			At:         step.At,
			Score:      res.Score,
			Source:     source,
			State:      res.State,
			Previous:   res.PreviousState,
			Action:     res.Action != nil,
			ActionText: res.ActionText(),
		}
		r.Mismatches = check(step.Expect, r)
		results = append(results, r)
	}
	return results, classifier.Snapshot()
}

func check(want Expectation, got StepResult) []string {
	var out []string
	if want.State != "" && focus.State(want.State) != got.State {
		out = append(out, fmt.Sprintf("state: want %s, got %s", want.State, got.State))
	}
	if want.Score != nil && *want.Score != got.Score {
		out = append(out, fmt.Sprintf("score: want %d, got %d", *want.Score, got.Score))
	}
	if want.Action != nil && *want.Action != got.Action {
		out = append(out, fmt.Sprintf("action: want %v, got %v", *want.Action, got.Action))
	}
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []StepResult, final focus.SessionState) Summary {
	s := Summary{
		TotalSteps: len(results),
		ByState:    map[focus.State]int{},
		Final:      final,
	}
	for _, r := range results {
		s.ByState[r.State]++
		if r.Action {
			s.Actions++
		}
		if !r.Passed() {
			s.Failed++
		}
	}
	return s
}

// #endregion replay
