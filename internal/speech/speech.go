// Package speech voices corrective actions through a local Piper binary and
// a command-line audio player.
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/logging"
	"github.com/danielpatrickdp/focus-monitor/internal/persona"
)

var (
	// ErrUnknownVoice is returned for personas or models that are not configured.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrEmptyText is returned when nothing speakable remains after sanitizing.
	ErrEmptyText = errors.New("empty text")
)

// Synthesizer turns text into WAV audio using a voice model.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, model string) ([]byte, error)
}

// Player plays WAV audio.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// Speaker resolves a persona to its voice model and speaks text with it.
type Speaker struct {
	synth    Synthesizer
	player   Player
	registry *persona.Registry
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewSpeaker builds a Speaker. player may be nil when audio is only returned
// to HTTP callers.
func NewSpeaker(synth Synthesizer, player Player, registry *persona.Registry, timeout time.Duration, logger zerolog.Logger) *Speaker {
	return &Speaker{
		synth:    synth,
		player:   player,
		registry: registry,
		timeout:  timeout,
		logger:   logging.Component(logger, "speech"),
	}
}

// Synthesize renders text in the voice of personaName. An empty name uses the
// default persona.
func (s *Speaker) Synthesize(ctx context.Context, text, personaName string) ([]byte, error) {
	p := s.registry.Default()
	if personaName != "" {
		var ok bool
		if p, ok = s.registry.Lookup(personaName); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVoice, personaName)
		}
	}
	if p.VoiceModel == "" {
		return nil, fmt.Errorf("%w: persona %s has no voice model", ErrUnknownVoice, p.Key)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.synth.Synthesize(ctx, text, p.VoiceModel)
}

// Speak synthesizes and plays text. Callers treat failures as "speech skipped".
func (s *Speaker) Speak(ctx context.Context, text, personaName string) error {
	wav, err := s.Synthesize(ctx, text, personaName)
	if err != nil {
		return err
	}
	if s.player == nil {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.player.Play(ctx, wav); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	s.logger.Debug().Str("persona", personaName).Int("bytes", len(wav)).Msg("spoke action")
	return nil
}

// Voices lists the configured personas.
func (s *Speaker) Voices() []persona.Persona {
	return s.registry.List()
}

// DefaultVoice returns the default persona.
func (s *Speaker) DefaultVoice() persona.Persona {
	return s.registry.Default()
}
