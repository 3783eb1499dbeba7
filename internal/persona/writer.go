package persona

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Generator runs a text-only prompt. ollama.Client and codec.Client both
// satisfy it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Writer implements focus.ActionWriter on top of a Generator.
type Writer struct {
	gen      Generator
	registry *Registry
	timeout  time.Duration
}

// NewWriter returns a Writer. A zero timeout leaves the caller's deadline as is.
func NewWriter(gen Generator, registry *Registry, timeout time.Duration) *Writer {
	return &Writer{gen: gen, registry: registry, timeout: timeout}
}

// BuildPrompt frames situation for a persona prompt.
func BuildPrompt(personaPrompt, situation string) string {
	if strings.TrimSpace(situation) == "" {
		situation = "No details provided"
	}
	return personaPrompt + `

The user appears distracted. Here's the context:
` + situation + `

Generate ONE brief response (1-2 sentences max) to remind them to refocus. Stay in character.`
}

// WriteAction asks the model for persona-flavoured corrective text.
// Unknown personas use the default persona's prompt.
func (w *Writer) WriteAction(ctx context.Context, persona, situation string) (string, error) {
	p := w.registry.Resolve(persona)
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	text, err := w.gen.Generate(ctx, BuildPrompt(p.Prompt, situation))
	if err != nil {
		return "", fmt.Errorf("generate action for %s: %w", p.Key, err)
	}
	return strings.TrimSpace(text), nil
}
