// Package vision scores webcam frames against a calibrated baseline using a
// perception model.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/calibration"
	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/logging"
	"github.com/danielpatrickdp/focus-monitor/internal/score"
	"github.com/danielpatrickdp/focus-monitor/internal/status"
)

var (
	// ErrNotCalibrated is returned by Baseline before the first calibration.
	ErrNotCalibrated = errors.New("no calibration baseline")
	// ErrEmptyImage is returned when a frame has no bytes.
	ErrEmptyImage = errors.New("empty image")
)

// NotCalibratedObservation is reported when analysis runs without a baseline.
const NotCalibratedObservation = "No calibration baseline set. Please calibrate first."

// Analysis sources beyond the parser's own tags.
const (
	SourceUncalibrated    = "uncalibrated"
	SourcePerceptionError = "perception_error"
)

// #region interfaces

// Describer sends an image and a prompt to a perception model.
type Describer interface {
	Describe(ctx context.Context, prompt string, image []byte) (string, error)
}

// BaselineStore persists calibration baselines. *calibration.Store satisfies it.
type BaselineStore interface {
	Save(description string, image []byte) (*calibration.Baseline, error)
	Latest() (*calibration.Baseline, error)
}

// #endregion interfaces

// #region analysis

// Analysis is the scored reading of one frame.
type Analysis struct {
	Score        int         `json:"focus_score"`
	State        focus.State `json:"state"`
	Observations string      `json:"observations"`
	Focused      bool        `json:"focused"`
	Source       string      `json:"source"`
	// Uncertain is set when Score is a default rather than a measurement.
	Uncertain bool `json:"-"`
}

// Status converts the analysis into the form kept in the status store.
func (a Analysis) Status() *status.Analysis {
	return &status.Analysis{
		FocusScore:   a.Score,
		State:        a.State,
		Observations: a.Observations,
		Focused:      a.Focused,
		Source:       a.Source,
	}
}

// #endregion analysis

// #region analyzer

// Analyzer turns frames into analyses. The current baseline is cached after
// the first load.
type Analyzer struct {
	describer  Describer
	baselines  BaselineStore
	thresholds focus.Config
	timeout    time.Duration
	logger     zerolog.Logger

	mu       sync.RWMutex
	baseline *calibration.Baseline
	loaded   bool
}

// NewAnalyzer builds an Analyzer. thresholds only drive the State and
// Focused fields of the returned analyses.
func NewAnalyzer(d Describer, baselines BaselineStore, thresholds focus.Config, timeout time.Duration, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		describer:  d,
		baselines:  baselines,
		thresholds: thresholds,
		timeout:    timeout,
		logger:     logging.Component(logger, "vision"),
	}
}

// Baseline returns the current baseline or ErrNotCalibrated.
func (a *Analyzer) Baseline() (*calibration.Baseline, error) {
	a.mu.RLock()
	if a.loaded {
		b := a.baseline
		a.mu.RUnlock()
		if b == nil {
			return nil, ErrNotCalibrated
		}
		return b, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		b, err := a.baselines.Latest()
		if err != nil {
			return nil, fmt.Errorf("load baseline: %w", err)
		}
		a.baseline = b
		a.loaded = true
	}
	if a.baseline == nil {
		return nil, ErrNotCalibrated
	}
	return a.baseline, nil
}

// Calibrate describes image and stores the description as the new baseline.
// On failure the previous baseline stays in effect.
func (a *Analyzer) Calibrate(ctx context.Context, image []byte) (*calibration.Baseline, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	desc, err := a.describer.Describe(ctx, CalibrationPrompt, image)
	if err != nil {
		return nil, fmt.Errorf("describe baseline: %w", err)
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil, fmt.Errorf("describe baseline: empty description")
	}

	b, err := a.baselines.Save(desc, image)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.baseline = b
	a.loaded = true
	a.mu.Unlock()

	a.logger.Info().Str("baseline", truncate(desc, 100)).Msg("calibration set")
	return b, nil
}

// Analyze scores image against the baseline. It never fails: a missing
// baseline scores 0 and a perception failure scores the parser default.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) Analysis {
	b, err := a.Baseline()
	if err != nil {
		if !errors.Is(err, ErrNotCalibrated) {
			a.logger.Warn().Err(err).Msg("baseline unavailable")
		}
		return Analysis{
			Score:        0,
			State:        focus.StateRed,
			Observations: NotCalibratedObservation,
			Source:       SourceUncalibrated,
		}
	}
	if len(image) == 0 {
		return a.degraded(ErrEmptyImage)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	raw, err := a.describer.Describe(ctx, AssessmentPrompt(b.Description), image)
	if err != nil {
		return a.degraded(err)
	}

	parsed := score.Parse(raw)
	if parsed.Uncertain() {
		a.logger.Warn().Str("raw", truncate(raw, 200)).Msg("could not parse perception output, using default score")
	}
	return a.build(parsed.Score, parsed.Observation, string(parsed.Source), parsed.Uncertain())
}

func (a *Analyzer) degraded(err error) Analysis {
	a.logger.Warn().Err(err).Str("source", SourcePerceptionError).Msg("perception failed, using default score")
	return a.build(score.DefaultScore, "Analysis error: "+err.Error(), SourcePerceptionError, true)
}

func (a *Analyzer) build(s int, observations, source string, uncertain bool) Analysis {
	st := focus.Classify(s, a.thresholds)
	if uncertain && st == focus.StateGreen {
		st = focus.StateYellow
	}
	return Analysis{
		Score:        s,
		State:        st,
		Observations: observations,
		Focused:      st == focus.StateGreen,
		Source:       source,
		Uncertain:    uncertain,
	}
}

func (a *Analyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// #endregion analyzer

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
