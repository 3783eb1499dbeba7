package replay

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/focus-monitor/internal/focus"
)

// #region fixture-types

// Fixture is the top-level YAML structure for a replay fixture.
type Fixture struct {
	Description string        `yaml:"description"`
	Config      FixtureConfig `yaml:"config"`
	Persona     string        `yaml:"persona,omitempty"`
	Steps       []Step        `yaml:"steps"`
}

// FixtureConfig overrides the default classifier thresholds. Zero fields
// keep the defaults.
type FixtureConfig struct {
	GreenThreshold  *int          `yaml:"green_threshold,omitempty"`
	YellowThreshold *int          `yaml:"yellow_threshold,omitempty"`
	ActionCooldown  time.Duration `yaml:"action_cooldown,omitempty"`
}

// Step is one evaluation. Exactly one of Observation or Score is set:
// Observation is run through the score parser, Score is used as measured.
// Uncertain applies to Score steps only and caps GREEN at YELLOW.
type Step struct {
	At          time.Duration `yaml:"at"`
	Observation *string       `yaml:"observation,omitempty"`
	Score       *int          `yaml:"score,omitempty"`
	Uncertain   bool          `yaml:"uncertain,omitempty"`
	Expect      Expectation   `yaml:"expect,omitempty"`
}

// Expectation lists the checked outcomes of a step. Nil fields are not checked.
type Expectation struct {
	State  string `yaml:"state,omitempty"`
	Score  *int   `yaml:"score,omitempty"`
	Action *bool  `yaml:"action,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// ParseFixture decodes and validates fixture YAML. Unknown keys are rejected.
func ParseFixture(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks step inputs, ordering and the classifier config.
func (f *Fixture) Validate() error {
	if len(f.Steps) == 0 {
		return fmt.Errorf("fixture has no steps")
	}
	for i, s := range f.Steps {
		if (s.Observation == nil) == (s.Score == nil) {
			return fmt.Errorf("step %d: exactly one of observation or score is required", i)
		}
		if s.Uncertain && s.Score == nil {
			return fmt.Errorf("step %d: uncertain requires score", i)
		}
		if i > 0 && s.At < f.Steps[i-1].At {
			return fmt.Errorf("step %d: at %s is before previous step", i, s.At)
		}
		if s.Expect.State != "" && !focus.State(s.Expect.State).Valid() {
			return fmt.Errorf("step %d: unknown state %q", i, s.Expect.State)
		}
	}
	return f.Config.ToFocusConfig().Validate()
}

// ToFocusConfig applies the overrides to focus.DefaultConfig.
func (c FixtureConfig) ToFocusConfig() focus.Config {
	cfg := focus.DefaultConfig()
	if c.GreenThreshold != nil {
		cfg.GreenThreshold = *c.GreenThreshold
	}
	if c.YellowThreshold != nil {
		cfg.YellowThreshold = *c.YellowThreshold
	}
	if c.ActionCooldown > 0 {
		cfg.ActionCooldown = c.ActionCooldown
	}
	return cfg
}

// Marshal encodes the fixture as YAML.
func (f *Fixture) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode fixture: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode fixture: %w", err)
	}
	return buf.Bytes(), nil
}

// #endregion fixture-loader
