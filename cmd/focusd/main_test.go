package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/focus-monitor/internal/config"
	"github.com/danielpatrickdp/focus-monitor/internal/persona"
	"github.com/danielpatrickdp/focus-monitor/internal/speech"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "focus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheckConfig_PrintsEffectiveSettings(t *testing.T) {
	path := writeConfig(t, `
focus:
  green_threshold: 60
  yellow_threshold: 30
  action_cooldown: 45s
backend: codec
codec:
  addr: localhost:6000
`)
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--config", path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "green>=60 yellow>=30 cooldown=45s")
	assert.Contains(t, out.String(), "codec localhost:6000")
	assert.Contains(t, out.String(), "default hal")
}

func TestCheckConfig_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
focus:
  green_threshold: 20
  yellow_threshold: 40
`)
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"check-config", "--config", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuild_WiresComponents(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
journal:
  path: `+filepath.Join(dir, "focus.db")+`
capture:
  file: frame.jpg
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := build(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	assert.NotNil(t, a.server)
	assert.NotNil(t, a.sampler)
	assert.NotEmpty(t, a.sampler.SessionID())
}

func TestFrameSource_UsesConfiguredMethod(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff})
	}))
	defer srv.Close()

	cfg, err := config.Load(writeConfig(t, "capture:\n  url: "+srv.URL+"\n  method: POST\n"))
	require.NoError(t, err)

	frame, err := frameSource(cfg).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, frame.Data)
}

func TestMissingVoices(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs an executable script")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "piper")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en_GB-alan-medium.onnx"), []byte("model"), 0o644))

	registry, err := persona.NewRegistry([]persona.Persona{
		{Key: "hal", DisplayName: "Hal", VoiceModel: "en_GB-alan-medium"},
		{Key: "drill_sergeant", DisplayName: "Drill Sergeant", VoiceModel: "en_US-joe-medium"},
		{Key: "mute", DisplayName: "Mute"},
	}, "hal")
	require.NoError(t, err)

	piper := speech.NewPiper(speech.PiperConfig{BinaryPath: bin, ModelsDir: dir}, zerolog.Nop())
	assert.Equal(t, []string{"drill_sergeant", "mute"}, missingVoices(piper, registry))
}
