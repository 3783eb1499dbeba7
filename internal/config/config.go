// Package config loads the focus monitor configuration from YAML and the
// environment. Invalid configuration is an error; callers must not start.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danielpatrickdp/focus-monitor/internal/focus"
	"github.com/danielpatrickdp/focus-monitor/internal/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix prefixes environment overrides, e.g. FOCUS_FOCUS_GREEN_THRESHOLD.
const EnvPrefix = "FOCUS"

// #region types

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig           `mapstructure:"server"`
	Focus        FocusConfig            `mapstructure:"focus"`
	History      HistoryConfig          `mapstructure:"history"`
	Sampling     SamplingConfig         `mapstructure:"sampling"`
	Timeouts     TimeoutConfig          `mapstructure:"timeouts"`
	Backend      string                 `mapstructure:"backend"` // ollama | codec
	Ollama       OllamaConfig           `mapstructure:"ollama"`
	Codec        CodecConfig            `mapstructure:"codec"`
	Capture      CaptureConfig          `mapstructure:"capture"`
	Speech       SpeechConfig           `mapstructure:"speech"`
	Journal      JournalConfig          `mapstructure:"journal"`
	Logging      logging.Config         `mapstructure:"logging"`
	DefaultVoice string                 `mapstructure:"default_voice"`
	Voices       map[string]VoiceConfig `mapstructure:"voices"`

	// Dir is the directory of the loaded file; relative paths resolve against it.
	Dir string `mapstructure:"-"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// FocusConfig holds the classifier thresholds.
type FocusConfig struct {
	GreenThreshold  int           `mapstructure:"green_threshold"`
	YellowThreshold int           `mapstructure:"yellow_threshold"`
	ActionCooldown  time.Duration `mapstructure:"action_cooldown"`
}

// HistoryConfig bounds the in-memory event log and score history.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// SamplingConfig drives the periodic sampling loop.
type SamplingConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	AutoStart bool          `mapstructure:"auto_start"`
}

// TimeoutConfig bounds every call to an external collaborator.
type TimeoutConfig struct {
	Capture    time.Duration `mapstructure:"capture"`
	Perception time.Duration `mapstructure:"perception"`
	Action     time.Duration `mapstructure:"action"`
	Speech     time.Duration `mapstructure:"speech"`
}

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	URL         string `mapstructure:"url"`
	VisionModel string `mapstructure:"vision_model"`
	TextModel   string `mapstructure:"text_model"`
}

// CodecConfig points at the gRPC inference service.
type CodecConfig struct {
	Addr string `mapstructure:"addr"`
}

// CaptureConfig selects the frame source. URL wins over File.
type CaptureConfig struct {
	URL    string `mapstructure:"url"`
	Method string `mapstructure:"method"` // GET, or POST for endpoints that trigger a capture
	File   string `mapstructure:"file"`
}

// SpeechConfig configures Piper synthesis and playback.
type SpeechConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	PiperBinary string   `mapstructure:"piper_binary"`
	ModelsDir   string   `mapstructure:"models_dir"`
	Player      []string `mapstructure:"player"`
}

// JournalConfig locates the SQLite evaluation journal.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// VoiceConfig is one persona/voice entry.
type VoiceConfig struct {
	DisplayName string `mapstructure:"display_name"`
	PersonaFile string `mapstructure:"persona_file"`
	Model       string `mapstructure:"model"`
}

// #endregion types

// #region defaults

// DefaultVoices are the stock personas.
func DefaultVoices() map[string]VoiceConfig {
	return map[string]VoiceConfig{
		"hal":                {DisplayName: "Hal", Model: "en_GB-alan-medium"},
		"sarcastic_friend":   {DisplayName: "Sarcastic Friend", Model: "en_US-ryan-medium"},
		"motivational_coach": {DisplayName: "Motivational Coach", Model: "en_US-amy-medium"},
		"drill_sergeant":     {DisplayName: "Drill Sergeant", Model: "en_US-joe-medium"},
	}
}

func setDefaults(v *viper.Viper) {
	fc := focus.DefaultConfig()
	v.SetDefault("server.addr", ":5050")
	v.SetDefault("focus.green_threshold", fc.GreenThreshold)
	v.SetDefault("focus.yellow_threshold", fc.YellowThreshold)
	v.SetDefault("focus.action_cooldown", fc.ActionCooldown)
	v.SetDefault("history.capacity", 100)
	v.SetDefault("sampling.interval", 10*time.Second)
	v.SetDefault("sampling.auto_start", false)
	v.SetDefault("timeouts.capture", 10*time.Second)
	v.SetDefault("timeouts.perception", 60*time.Second)
	v.SetDefault("timeouts.action", 15*time.Second)
	v.SetDefault("timeouts.speech", 30*time.Second)
	v.SetDefault("backend", "ollama")
	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("ollama.vision_model", "llava:7b")
	v.SetDefault("ollama.text_model", "llama3.2:3b")
	v.SetDefault("codec.addr", "localhost:50051")
	v.SetDefault("capture.url", "")
	v.SetDefault("capture.method", "GET")
	v.SetDefault("capture.file", "")
	v.SetDefault("speech.enabled", false)
	v.SetDefault("speech.piper_binary", "piper")
	v.SetDefault("speech.models_dir", "models")
	v.SetDefault("speech.player", []string{"aplay", "-q"})
	v.SetDefault("journal.path", "focus.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("default_voice", "hal")
}

// #endregion defaults

// #region load

// Load reads path (optional; "" means defaults plus environment) and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ollama.url", EnvPrefix+"_OLLAMA_URL", "OLLAMA_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	dir := "."
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		dir = filepath.Dir(path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	cfg.Dir = dir
	if len(cfg.Voices) == 0 {
		cfg.Voices = DefaultVoices()
	}
	cfg.DefaultVoice = focus.NormalizePersona(cfg.DefaultVoice)
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.Capture.Method = strings.ToUpper(strings.TrimSpace(cfg.Capture.Method))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// #endregion load

// #region validate

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if err := c.FocusSettings().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("%w: history.capacity must be positive, got %d", ErrInvalid, c.History.Capacity)
	}
	if c.Sampling.Interval <= 0 {
		return fmt.Errorf("%w: sampling.interval must be positive, got %s", ErrInvalid, c.Sampling.Interval)
	}
	timeouts := map[string]time.Duration{
		"capture":    c.Timeouts.Capture,
		"perception": c.Timeouts.Perception,
		"action":     c.Timeouts.Action,
		"speech":     c.Timeouts.Speech,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%w: timeouts.%s must be positive, got %s", ErrInvalid, name, d)
		}
	}
	switch c.Capture.Method {
	case "GET", "POST":
	default:
		return fmt.Errorf("%w: capture.method must be GET or POST, got %q", ErrInvalid, c.Capture.Method)
	}
	switch c.Backend {
	case "ollama":
		if c.Ollama.URL == "" {
			return fmt.Errorf("%w: ollama.url is required for the ollama backend", ErrInvalid)
		}
	case "codec":
		if c.Codec.Addr == "" {
			return fmt.Errorf("%w: codec.addr is required for the codec backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if _, ok := c.Voices[c.DefaultVoice]; !ok {
		return fmt.Errorf("%w: default_voice %q not in voices %v", ErrInvalid, c.DefaultVoice, c.VoiceNames())
	}
	return nil
}

// #endregion validate

// #region accessors

// FocusSettings converts the focus section into classifier config.
func (c *Config) FocusSettings() focus.Config {
	return focus.Config{
		GreenThreshold:  c.Focus.GreenThreshold,
		YellowThreshold: c.Focus.YellowThreshold,
		ActionCooldown:  c.Focus.ActionCooldown,
	}
}

// VoiceNames lists voice keys in sorted order.
func (c *Config) VoiceNames() []string {
	names := make([]string, 0, len(c.Voices))
	for k := range c.Voices {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolve makes p absolute relative to the config file directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// ReadPersonaPrompt returns the persona prompt file contents for voice, or
// "" when the voice has no prompt file or it cannot be read.
func (c *Config) ReadPersonaPrompt(voice string) (string, error) {
	vc, ok := c.Voices[focus.NormalizePersona(voice)]
	if !ok || vc.PersonaFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Resolve(vc.PersonaFile))
	if err != nil {
		return "", fmt.Errorf("read persona file for %s: %w", voice, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// #endregion accessors
