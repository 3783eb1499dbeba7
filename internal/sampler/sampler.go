// Package sampler runs the periodic capture → analyze → evaluate loop and
// writes each outcome into the status store.
package sampler

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/capture"
	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/journal"
	"github.com/danielpatrickdp/focus-monitor/internal/logging"
	"github.com/danielpatrickdp/focus-monitor/internal/metrics"
	"github.com/danielpatrickdp/focus-monitor/internal/status"
	"github.com/danielpatrickdp/focus-monitor/internal/vision"
)

// #region collaborators

// Analyzer scores a frame. *vision.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) vision.Analysis
}

// Evaluator runs the focus classifier. *focus.Classifier satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, in focus.Input) focus.Result
}

// Speaker voices action text. *speech.Speaker satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text, persona string) error
}

// Recorder appends to the evaluation journal. *journal.Journal satisfies it.
type Recorder interface {
	Record(e journal.Entry) (journal.Entry, error)
}

// Deps are the sampler's collaborators. Speaker and Journal are optional.
type Deps struct {
	Source     capture.Source
	Analyzer   Analyzer
	Classifier Evaluator
	Store      *status.Store
	Speaker    Speaker
	Journal    Recorder
}

// #endregion collaborators

// #region sampler

// Sampler owns the cron schedule and the tick pipeline.
type Sampler struct {
	deps           Deps
	cron           *cron.Cron
	captureTimeout time.Duration
	sessionID      string
	now            func() time.Time
	logger         zerolog.Logger
}

// New builds a sampler ticking every interval. Ticks never overlap; a tick
// that is still running when the next is due causes that one to be skipped.
func New(deps Deps, interval, captureTimeout time.Duration, logger zerolog.Logger) (*Sampler, error) {
	if deps.Source == nil || deps.Analyzer == nil || deps.Classifier == nil || deps.Store == nil {
		return nil, fmt.Errorf("sampler: source, analyzer, classifier and store are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sampler: interval must be positive, got %s", interval)
	}

	logger = logging.Component(logger, "sampler")
	cl := cronLogger{logger: logger}
	s := &Sampler{
		deps:           deps,
		cron:           cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		captureTimeout: captureTimeout,
		sessionID:      uuid.New().String(),
		now:            time.Now,
		logger:         logger,
	}

	if _, err := s.cron.AddFunc("@every "+interval.String(), s.runTick); err != nil {
		return nil, fmt.Errorf("schedule sampling: %w", err)
	}
	return s, nil
}

// SessionID identifies this process's run in the journal.
func (s *Sampler) SessionID() string {
	return s.sessionID
}

// Start starts the scheduler.
func (s *Sampler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *Sampler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SetActive toggles sampling. Deactivation takes effect at the next tick;
// an in-flight tick completes.
func (s *Sampler) SetActive(active bool) {
	s.deps.Store.Update(status.Patch{SamplingActive: &active})
	metrics.SetSampling(active)
	s.logger.Info().Bool("active", active).Msg("sampling toggled")
}

func (s *Sampler) runTick() {
	if err := s.Tick(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("sampling tick failed")
	}
}

// #endregion sampler

// #region tick

// Tick runs one sample when sampling is active. Collaborator failures past
// the capture stage degrade to fallbacks rather than errors.
func (s *Sampler) Tick(ctx context.Context) error {
	if !s.deps.Store.SamplingActive() {
		return nil
	}
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	frame, err := s.capture(ctx)
	if err != nil {
		metrics.TickErrors.WithLabelValues("capture").Inc()
		return fmt.Errorf("capture: %w", err)
	}

	analysis := s.deps.Analyzer.Analyze(ctx, frame.Data)
	metrics.ParseResults.WithLabelValues(analysis.Source).Inc()
	image := base64.StdEncoding.EncodeToString(frame.Data)

	// Without a baseline there is nothing to judge against; surface the
	// analysis but leave the session untouched.
	if analysis.Source == vision.SourceUncalibrated {
		s.deps.Store.Update(status.Patch{LatestAnalysis: analysis.Status(), LatestImage: &image})
		s.logger.Debug().Msg("not calibrated, skipping evaluation")
		return nil
	}

	persona := s.deps.Store.Persona()
	now := s.now()
	result := s.deps.Classifier.Evaluate(ctx, focus.Input{
		Score:       analysis.Score,
		Observation: analysis.Observations,
		Persona:     persona,
		Now:         now,
		Uncertain:   analysis.Uncertain,
	})

	patch := status.Patch{
		Score:          &result.Score,
		LatestAnalysis: analysis.Status(),
		LatestImage:    &image,
	}
	if s.deps.Store.State() != result.State {
		patch.State = &result.State
	}
	s.deps.Store.Update(patch)
	s.deps.Store.AppendScore(now, result.Score)

	var actionSource string
	if result.Action != nil {
		text := result.Action.Text
		actionSource = string(result.Action.Source)
		s.deps.Store.Log(fmt.Sprintf("%s: %s", persona, text), &text)
		s.speak(ctx, text, persona)
	}

	metrics.ObserveEvaluation(string(result.State), result.Score, actionSource)
	s.record(analysis, result, actionSource, now)

	s.logger.Debug().
		Int("score", result.Score).
		Str("state", string(result.State)).
		Str("previous", string(result.PreviousState)).
		Bool("action", result.Action != nil).
		Msg("tick complete")
	return nil
}

func (s *Sampler) capture(ctx context.Context) (capture.Frame, error) {
	if s.captureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.captureTimeout)
		defer cancel()
	}
	return s.deps.Source.Capture(ctx)
}

func (s *Sampler) speak(ctx context.Context, text, persona string) {
	if s.deps.Speaker == nil {
		return
	}
	if err := s.deps.Speaker.Speak(ctx, text, persona); err != nil {
		metrics.TickErrors.WithLabelValues("speech").Inc()
		s.logger.Warn().Err(err).Str("persona", persona).Msg("speech skipped")
	}
}

func (s *Sampler) record(a vision.Analysis, r focus.Result, actionSource string, at time.Time) {
	if s.deps.Journal == nil {
		return
	}
	_, err := s.deps.Journal.Record(journal.Entry{
		SessionID:     s.sessionID,
		State:         string(r.State),
		PreviousState: string(r.PreviousState),
		Score:         r.Score,
		ParseSource:   a.Source,
		Observation:   a.Observations,
		Action:        r.ActionText(),
		ActionSource:  actionSource,
		Persona:       r.Persona,
		CreatedAt:     at,
	})
	if err != nil {
		metrics.TickErrors.WithLabelValues("journal").Inc()
		s.logger.Warn().Err(err).Msg("journal write failed")
	}
}

// #endregion tick

// #region cron-logger

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// #endregion cron-logger
