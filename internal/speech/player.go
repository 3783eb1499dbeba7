package speech

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// CommandPlayer plays audio by running an external command with the path of
// a temporary WAV file appended, e.g. ["aplay", "-q"].
type CommandPlayer struct {
	argv []string
}

// NewCommandPlayer returns a player for argv. argv must not be empty.
func NewCommandPlayer(argv []string) (*CommandPlayer, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("player command is empty")
	}
	return &CommandPlayer{argv: append([]string(nil), argv...)}, nil
}

// Play writes wav to a temp file and runs the player on it.
func (p *CommandPlayer) Play(ctx context.Context, wav []byte) error {
	f, err := os.CreateTemp("", "focus-*.wav")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(wav); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	args := append(append([]string(nil), p.argv[1:]...), path)
	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", p.argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
