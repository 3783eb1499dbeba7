package focus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/logging"
)

// #region classify

// Classify maps a score onto a state. Scores equal to a threshold fall into
// the higher band.
func Classify(score int, cfg Config) State {
	switch {
	case score >= cfg.GreenThreshold:
		return StateGreen
	case score >= cfg.YellowThreshold:
		return StateYellow
	default:
		return StateRed
	}
}

// #endregion classify

// #region classifier

// Classifier tracks the running focus session: current state, yellow-entry
// time and the action cooldown. A single instance owns the session; the
// mutex serialises callers so the HTTP surface and the sampler can share it.
type Classifier struct {
	config Config
	writer ActionWriter
	logger zerolog.Logger

	mu              sync.Mutex
	current         State
	lastScore       *int
	yellowEnteredAt *time.Time
	lastActionAt    *time.Time
}

// NewClassifier creates a classifier in the GREEN state.
// writer may be nil, in which case every action uses the fallback phrase.
func NewClassifier(config Config, writer ActionWriter, logger zerolog.Logger) *Classifier {
	return &Classifier{
		config:  config,
		writer:  writer,
		logger:  logging.Component(logger, "classifier"),
		current: StateGreen,
	}
}

// Config returns the classifier's immutable configuration.
func (c *Classifier) Config() Config {
	return c.config
}

// #endregion classifier

// #region evaluate

// Evaluate classifies in.Score, updates the session and, when the new state
// is RED and the cooldown has elapsed, produces a corrective action.
// The decision is taken under the lock; text generation runs after it is
// released so a slow writer does not hold up other callers.
func (c *Classifier) Evaluate(ctx context.Context, in Input) Result {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	c.mu.Lock()
	next := Classify(in.Score, c.config)
	if in.Uncertain && next == StateGreen {
		next = StateYellow
	}
	prev := c.current

	switch next {
	case StateGreen:
		c.yellowEnteredAt = nil
	case StateYellow:
		if prev == StateGreen {
			t := in.Now
			c.yellowEnteredAt = &t
		}
	}

	score := in.Score
	c.lastScore = &score
	c.current = next

	act := next == StateRed && c.cooldownElapsed(in.Now)
	if act {
		t := in.Now
		c.lastActionAt = &t
	}
	c.mu.Unlock()

	result := Result{
		State:         next,
		PreviousState: prev,
		Score:         in.Score,
		Persona:       in.Persona,
	}

	if next == StateRed && !act {
		c.logger.Debug().Int("score", in.Score).Msg("skipping action, cooldown active")
	}
	if act {
		action := c.writeAction(ctx, in.Persona, in.Observation)
		result.Action = &action
		c.logger.Info().
			Str("persona", in.Persona).
			Str("source", string(action.Source)).
			Msg("generated corrective action")
	}
	return result
}

// cooldownElapsed must be called with c.mu held.
func (c *Classifier) cooldownElapsed(now time.Time) bool {
	if c.lastActionAt == nil {
		return true
	}
	return now.Sub(*c.lastActionAt) >= c.config.ActionCooldown
}

// #endregion evaluate

// #region write-action

// writeAction never fails: writer errors and empty output degrade to the
// persona's canned phrase.
func (c *Classifier) writeAction(ctx context.Context, persona, situation string) Action {
	if c.writer == nil {
		return Action{Text: FallbackAction(persona), Source: ActionFromFallback}
	}
	text, err := c.writer.WriteAction(ctx, persona, situation)
	if err != nil {
		c.logger.Warn().Err(err).Str("persona", persona).Msg("action writer failed, using fallback")
		return Action{Text: FallbackAction(persona), Source: ActionFromFallback}
	}
	text = trimSentences(text)
	if strings.TrimSpace(text) == "" {
		c.logger.Warn().Str("persona", persona).Msg("action writer returned empty text, using fallback")
		return Action{Text: FallbackAction(persona), Source: ActionFromFallback}
	}
	return Action{Text: text, Source: ActionFromModel}
}

// #endregion write-action

// #region snapshot

// Snapshot returns a copy of the session state.
func (c *Classifier) Snapshot() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := SessionState{Current: c.current}
	if c.lastScore != nil {
		v := *c.lastScore
		s.LastScore = &v
	}
	if c.yellowEnteredAt != nil {
		v := *c.yellowEnteredAt
		s.YellowEnteredAt = &v
	}
	if c.lastActionAt != nil {
		v := *c.lastActionAt
		s.LastActionAt = &v
	}
	return s
}

// #endregion snapshot
