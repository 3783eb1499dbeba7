package speech

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxPiperText = 500

// PiperConfig locates the piper binary and its .onnx voice models.
type PiperConfig struct {
	BinaryPath string
	ModelsDir  string
}

// Piper implements Synthesizer with the local Piper TTS binary.
type Piper struct {
	config PiperConfig
	logger zerolog.Logger
}

// NewPiper creates a Piper synthesizer.
func NewPiper(config PiperConfig, logger zerolog.Logger) *Piper {
	if config.BinaryPath == "" {
		config.BinaryPath = "piper"
	}
	return &Piper{
		config: config,
		logger: logger.With().Str("provider", "piper-tts").Logger(),
	}
}

// ModelPath returns the .onnx file for a model name.
func (p *Piper) ModelPath(model string) string {
	return filepath.Join(p.config.ModelsDir, model+".onnx")
}

// Available reports whether the binary resolves and the model file exists.
func (p *Piper) Available(model string) bool {
	if _, err := exec.LookPath(p.config.BinaryPath); err != nil {
		return false
	}
	_, err := os.Stat(p.ModelPath(model))
	return err == nil
}

// Synthesize runs `piper --model <model>.onnx -f <tmp>.wav` with text on stdin.
func (p *Piper) Synthesize(ctx context.Context, text, model string) ([]byte, error) {
	text = sanitize(text)
	if len(text) > maxPiperText {
		text = text[:maxPiperText]
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	modelPath := p.ModelPath(model)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model %s not found", ErrUnknownVoice, model)
	}

	tmpFile, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	start := time.Now()
	cmd := exec.CommandContext(ctx, p.config.BinaryPath, "--model", modelPath, "-f", tmpPath)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.logger.Error().Err(err).Str("stderr", stderr.String()).Msg("piper failed")
		return nil, fmt.Errorf("piper command failed: %w", err)
	}

	audio, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	p.logger.Debug().
		Str("model", model).
		Int("audioBytes", len(audio)).
		Dur("processingTime", time.Since(start)).
		Msg("piper synthesis complete")
	return audio, nil
}

var (
	markdownEmphasis = regexp.MustCompile(`\*+([^*]+)\*+`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// sanitize strips markdown emphasis and collapses whitespace.
func sanitize(text string) string {
	text = markdownEmphasis.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "\"", "'")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
