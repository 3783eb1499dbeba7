// Package server exposes the status store, the classifier and the perception,
// calibration and speech collaborators over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/calibration"
	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/journal"
	"github.com/danielpatrickdp/focus-monitor/internal/logging"
	"github.com/danielpatrickdp/focus-monitor/internal/persona"
	"github.com/danielpatrickdp/focus-monitor/internal/status"
	"github.com/danielpatrickdp/focus-monitor/internal/vision"
)

// #region collaborators

// Classifier is the focus classifier. *focus.Classifier satisfies it.
type Classifier interface {
	Evaluate(ctx context.Context, in focus.Input) focus.Result
	Snapshot() focus.SessionState
}

// Analyzer scores and calibrates frames. *vision.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) vision.Analysis
	Calibrate(ctx context.Context, image []byte) (*calibration.Baseline, error)
	Baseline() (*calibration.Baseline, error)
}

// Speaker synthesizes persona voices. *speech.Speaker satisfies it.
type Speaker interface {
	Synthesize(ctx context.Context, text, persona string) ([]byte, error)
	Voices() []persona.Persona
	DefaultVoice() persona.Persona
}

// Recorder appends to the evaluation journal. *journal.Journal satisfies it.
type Recorder interface {
	Record(e journal.Entry) (journal.Entry, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the server's collaborators. Store and Classifier are required;
// routes backed by a nil collaborator answer 503.
type Deps struct {
	Store      *status.Store
	Classifier Classifier
	Analyzer   Analyzer
	Speaker    Speaker
	Journal    Recorder
	Health     map[string]HealthCheck
}

// #endregion collaborators

// #region server

// Config holds listener settings.
type Config struct {
	Addr string
	// StreamInterval is how often /ws clients are checked for changes.
	StreamInterval time.Duration
}

// Server is the HTTP surface.
type Server struct {
	cfg        Config
	deps       Deps
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startTime  time.Time
	logger     zerolog.Logger

	// closing is closed by Shutdown so hijacked websocket loops exit.
	closing   chan struct{}
	closeOnce sync.Once
	streams   sync.WaitGroup
}

// New creates the server and registers its routes.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 500 * time.Millisecond
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		startTime: time.Now(),
		logger:    logging.Component(logger, "server"),
		closing:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /state", s.stateHandler)
	mux.HandleFunc("POST /status", s.statusHandler)
	mux.HandleFunc("POST /log", s.logHandler)
	mux.HandleFunc("GET /focus-history", s.focusHistoryHandler)
	mux.HandleFunc("POST /focus-history", s.addFocusHistoryHandler)
	mux.HandleFunc("POST /mind/evaluate", s.evaluateHandler)
	mux.HandleFunc("GET /mind/state", s.mindStateHandler)
	mux.HandleFunc("POST /vision/analyze", s.analyzeHandler)
	mux.HandleFunc("POST /vision/calibrate", s.calibrateHandler)
	mux.HandleFunc("GET /calibration", s.calibrationHandler)
	mux.HandleFunc("POST /calibration", s.calibrateHandler)
	mux.HandleFunc("POST /speech/speak", s.speakHandler)
	mux.HandleFunc("GET /speech/voices", s.voicesHandler)
	mux.HandleFunc("GET /ws", s.wsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     instrument(mux),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, ends websocket streams and waits for
// in-flight requests up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// #endregion server
