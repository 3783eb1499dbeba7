package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/calibration"
	"github.com/danielpatrickdp/focus-monitor/internal/capture"
	"github.com/danielpatrickdp/focus-monitor/internal/codec"
	"github.com/danielpatrickdp/focus-monitor/internal/config"
	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/journal"
	"github.com/danielpatrickdp/focus-monitor/internal/logging"
	"github.com/danielpatrickdp/focus-monitor/internal/ollama"
	"github.com/danielpatrickdp/focus-monitor/internal/persona"
	"github.com/danielpatrickdp/focus-monitor/internal/sampler"
	"github.com/danielpatrickdp/focus-monitor/internal/server"
	"github.com/danielpatrickdp/focus-monitor/internal/speech"
	"github.com/danielpatrickdp/focus-monitor/internal/status"
	"github.com/danielpatrickdp/focus-monitor/internal/vision"
)

const shutdownTimeout = 10 * time.Second

// #region backend

// backend is the model service used for both perception and action text.
type backend interface {
	vision.Describer
	persona.Generator
}

type app struct {
	server  *server.Server
	sampler *sampler.Sampler
	closers []func() error
	logger  zerolog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
}

func newBackend(cfg *config.Config) (backend, server.HealthCheck, func() error, error) {
	switch cfg.Backend {
	case "codec":
		c, err := codec.NewClient(cfg.Codec.Addr)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect codec %s: %w", cfg.Codec.Addr, err)
		}
		return c, nil, c.Close, nil
	default:
		c, err := ollama.NewClient(ollama.Config{
			URL:         cfg.Ollama.URL,
			VisionModel: cfg.Ollama.VisionModel,
			TextModel:   cfg.Ollama.TextModel,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("ollama client: %w", err)
		}
		return c, c.Health, func() error { return nil }, nil
	}
}

// #endregion backend

// #region wire

func build(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	j, err := journal.Open(cfg.Resolve(cfg.Journal.Path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	a.closers = append(a.closers, j.Close)

	baselines, err := calibration.NewStore(j.DB())
	if err != nil {
		return nil, fmt.Errorf("calibration store: %w", err)
	}

	model, health, closeModel, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeModel)

	registry, err := persona.FromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("personas: %w", err)
	}

	thresholds := cfg.FocusSettings()
	writer := persona.NewWriter(model, registry, cfg.Timeouts.Action)
	classifier := focus.NewClassifier(thresholds, writer, logger)
	store := status.NewStore(cfg.History.Capacity, status.WithPersona(registry.Default().DisplayName))
	analyzer := vision.NewAnalyzer(model, baselines, thresholds, cfg.Timeouts.Perception, logger)

	var player speech.Player
	if cfg.Speech.Enabled {
		p, err := speech.NewCommandPlayer(cfg.Speech.Player)
		if err != nil {
			return nil, fmt.Errorf("speech player: %w", err)
		}
		player = p
	}
	piper := speech.NewPiper(speech.PiperConfig{
		BinaryPath: cfg.Speech.PiperBinary,
		ModelsDir:  cfg.Resolve(cfg.Speech.ModelsDir),
	}, logger)
	if cfg.Speech.Enabled {
		for _, key := range missingVoices(piper, registry) {
			logger.Warn().Str("persona", key).Msg("voice model unavailable, speech for this persona will be skipped")
		}
	}
	speaker := speech.NewSpeaker(piper, player, registry, cfg.Timeouts.Speech, logger)

	deps := sampler.Deps{
		Source:     frameSource(cfg),
		Analyzer:   analyzer,
		Classifier: classifier,
		Store:      store,
		Journal:    j,
	}
	if cfg.Speech.Enabled {
		deps.Speaker = speaker
	}
	a.sampler, err = sampler.New(deps, cfg.Sampling.Interval, cfg.Timeouts.Capture, logger)
	if err != nil {
		return nil, err
	}
	a.sampler.SetActive(cfg.Sampling.AutoStart)

	checks := map[string]server.HealthCheck{}
	if health != nil {
		checks[cfg.Backend] = health
	}
	checks["journal"] = func(ctx context.Context) error { return j.DB().PingContext(ctx) }

	a.server = server.New(server.Config{Addr: cfg.Server.Addr}, server.Deps{
		Store:      store,
		Classifier: classifier,
		Analyzer:   analyzer,
		Speaker:    speaker,
		Journal:    j,
		Health:     checks,
	}, logger)

	ok = true
	return a, nil
}

func frameSource(cfg *config.Config) capture.Source {
	if cfg.Capture.URL != "" {
		return capture.NewHTTPSource(cfg.Capture.URL).WithMethod(cfg.Capture.Method)
	}
	return capture.NewFileSource(cfg.Resolve(cfg.Capture.File))
}

// missingVoices lists persona keys whose voice model piper cannot run.
func missingVoices(piper *speech.Piper, registry *persona.Registry) []string {
	var missing []string
	for _, p := range registry.List() {
		if p.VoiceModel == "" || !piper.Available(p.VoiceModel) {
			missing = append(missing, p.Key)
		}
	}
	return missing
}

// #endregion wire

// #region serve

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := logging.New(cfg.Logging)

	a, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.sampler.Start()
	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("backend", cfg.Backend).
		Str("session", a.sampler.SessionID()).
		Dur("interval", cfg.Sampling.Interval).
		Msg("focus monitor ready")

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	a.sampler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := a.server.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// #endregion serve
