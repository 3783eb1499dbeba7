package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/focus-monitor/internal/focus"
)

// #region store-struct

// Store is the shared status aggregate. One RWMutex guards every field so a
// reader never observes a half-applied update.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	start   time.Time
	version uint64

	state          focus.State
	score          *int
	events         history[Event]
	scores         history[ScorePoint]
	persona        string
	lastAction     *string
	samplingActive bool
	latestAnalysis *Analysis
	latestImage    string
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersona sets the initially selected persona.
func WithPersona(persona string) Option {
	return func(s *Store) { s.persona = persona }
}

// NewStore creates a store whose event log and score history each retain at
// most capacity entries. A non-positive capacity uses DefaultCapacity.
func NewStore(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		now:     time.Now,
		state:   focus.StateUnknown,
		persona: "Hal",
		events:  newHistory[Event](capacity),
		scores:  newHistory[ScorePoint](capacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	return s
}

// #endregion store-struct

// #region read

// Read returns an independent snapshot with uptime computed now.
func (s *Store) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:          s.state,
		Uptime:         formatUptime(s.now().Sub(s.start)),
		StartedAt:      s.start,
		Events:         s.events.snapshot(),
		ScoreHistory:   s.scores.snapshot(),
		Persona:        s.persona,
		SamplingActive: s.samplingActive,
		LatestImage:    s.latestImage,
	}
	if s.score != nil {
		v := *s.score
		snap.Score = &v
	}
	if s.lastAction != nil {
		v := *s.lastAction
		snap.LastAction = &v
	}
	if s.latestAnalysis != nil {
		v := *s.latestAnalysis
		snap.LatestAnalysis = &v
	}
	return snap
}

// ScoreHistory returns a copy of the score history only.
func (s *Store) ScoreHistory() []ScorePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scores.snapshot()
}

// State returns the current state.
func (s *Store) State() focus.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SamplingActive reports the sampling toggle.
func (s *Store) SamplingActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samplingActive
}

// Persona returns the selected persona.
func (s *Store) Persona() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// Version increases with every write. Streaming readers compare it to skip
// unchanged snapshots.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// #endregion read

// #region update

// Update applies the non-nil fields of p. Setting State also appends a
// "State changed to ..." event in the same critical section.
func (s *Store) Update(p Patch) {
	if p.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.State != nil {
		s.state = *p.State
	}
	if p.Score != nil {
		v := *p.Score
		s.score = &v
	}
	if p.Persona != nil {
		s.persona = *p.Persona
	}
	if p.SamplingActive != nil {
		s.samplingActive = *p.SamplingActive
	}
	if p.LatestAnalysis != nil {
		v := *p.LatestAnalysis
		s.latestAnalysis = &v
	}
	if p.LatestImage != nil {
		s.latestImage = *p.LatestImage
	}
	if p.LastAction != nil {
		v := *p.LastAction
		s.lastAction = &v
	}
	if p.State != nil {
		s.appendEventLocked(fmt.Sprintf("State changed to %s", *p.State))
	}
	s.version++
}

// Log appends one event and, when action is non-nil, records it as the last
// action, atomically.
func (s *Store) Log(message string, action *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendEventLocked(message)
	if action != nil {
		v := *action
		s.lastAction = &v
	}
	s.version++
}

// AppendScore appends one point to the bounded score history.
func (s *Store) AppendScore(ts time.Time, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scores.push(ScorePoint{Timestamp: ts, Score: score})
	s.version++
}

func (s *Store) appendEventLocked(message string) {
	now := s.now()
	s.events.push(Event{
		Timestamp: now.Format(EventTimeLayout),
		Message:   message,
		At:        now,
	})
}

// #endregion update

// #region helpers

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, rem := total/3600, total%3600
	return fmt.Sprintf("%02d:%02d:%02d", h, rem/60, rem%60)
}

// #endregion helpers
