// Package persona holds the configured voices/personas and turns a persona
// plus a situation into corrective text via a text model.
package persona

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/focus-monitor/internal/config"
	"github.com/danielpatrickdp/focus-monitor/internal/focus"
)

// DefaultPrompt is used for personas without a readable prompt file.
const DefaultPrompt = `You are a focus accountability assistant. Remind the user to stay focused.
Be firm. Be assertive. Be dramatic. Remind them what's at stake.
Then lighten the mood by being silly from time to time.`

// Persona is one configured voice.
type Persona struct {
	Key         string `json:"key"`          // normalised, e.g. "drill_sergeant"
	DisplayName string `json:"display_name"` // e.g. "Drill Sergeant"
	Prompt      string `json:"-"`
	VoiceModel  string `json:"model"` // Piper model name
}

// Registry is an immutable set of personas with a default.
type Registry struct {
	personas   map[string]Persona
	defaultKey string
}

// NewRegistry indexes personas by normalised key. defaultKey must be present.
func NewRegistry(personas []Persona, defaultKey string) (*Registry, error) {
	r := &Registry{personas: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		p.Key = focus.NormalizePersona(p.Key)
		if p.Key == "" {
			return nil, fmt.Errorf("persona with empty key")
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Key
		}
		if p.Prompt == "" {
			p.Prompt = DefaultPrompt
		}
		r.personas[p.Key] = p
	}
	r.defaultKey = focus.NormalizePersona(defaultKey)
	if _, ok := r.personas[r.defaultKey]; !ok {
		return nil, fmt.Errorf("default persona %q not configured", defaultKey)
	}
	return r, nil
}

// FromConfig builds the registry from the voices section. Unreadable prompt
// files are logged and replaced with DefaultPrompt.
func FromConfig(cfg *config.Config, logger zerolog.Logger) (*Registry, error) {
	personas := make([]Persona, 0, len(cfg.Voices))
	for _, key := range cfg.VoiceNames() {
		vc := cfg.Voices[key]
		prompt, err := cfg.ReadPersonaPrompt(key)
		if err != nil {
			logger.Warn().Err(err).Str("persona", key).Msg("using default persona prompt")
			prompt = ""
		}
		personas = append(personas, Persona{
			Key:         key,
			DisplayName: vc.DisplayName,
			Prompt:      prompt,
			VoiceModel:  vc.Model,
		})
	}
	return NewRegistry(personas, cfg.DefaultVoice)
}

// Lookup finds a persona by key or display name.
func (r *Registry) Lookup(name string) (Persona, bool) {
	p, ok := r.personas[focus.NormalizePersona(name)]
	return p, ok
}

// Resolve is Lookup falling back to the default persona.
func (r *Registry) Resolve(name string) Persona {
	if p, ok := r.Lookup(name); ok {
		return p
	}
	return r.personas[r.defaultKey]
}

// Default returns the default persona.
func (r *Registry) Default() Persona {
	return r.personas[r.defaultKey]
}

// List returns every persona sorted by key.
func (r *Registry) List() []Persona {
	out := make([]Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
