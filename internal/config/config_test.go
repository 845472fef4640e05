// ABOUTME: Tests for configuration loading
// ABOUTME: Defaults, file values, environment overrides and logger setup
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Path != "/dialog" {
		t.Errorf("expected path /dialog, got %s", cfg.Server.Path)
	}
	if cfg.Server.Name == "" {
		t.Error("expected default name")
	}
	if !cfg.Discovery.Enabled || cfg.Discovery.Timeout != 10*time.Second {
		t.Errorf("unexpected discovery defaults %+v", cfg.Discovery)
	}
	if cfg.Audio.Backend != "malgo" || cfg.Audio.Format != "raw-16khz-16bit-mono-pcm" || cfg.Audio.Volume != 100 {
		t.Errorf("unexpected audio defaults %+v", cfg.Audio)
	}
	if cfg.Devices.PollInterval != 2*time.Second {
		t.Errorf("expected 2s poll interval, got %s", cfg.Devices.PollInterval)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dialog.yaml")
	content := `
server:
  addr: 192.168.1.20:8928
  token: "${DIALOG_TEST_TOKEN}"
audio:
  backend: "null"
  frame_policy: fill
  frame_samples: 160
devices:
  poll_interval: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DIALOG_TEST_TOKEN", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != "192.168.1.20:8928" {
		t.Errorf("expected addr from file, got %s", cfg.Server.Addr)
	}
	if cfg.Server.Token != "secret" {
		t.Errorf("expected token resolved from env, got %s", cfg.Server.Token)
	}
	if cfg.Audio.Backend != "null" || cfg.Audio.FramePolicy != "fill" || cfg.Audio.FrameSamples != 160 {
		t.Errorf("unexpected audio config %+v", cfg.Audio)
	}
	if cfg.Devices.PollInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", cfg.Devices.PollInterval)
	}
	// untouched keys keep defaults
	if cfg.Server.Path != "/dialog" {
		t.Errorf("expected default path, got %s", cfg.Server.Path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DIALOG_SERVER_ADDR", "10.0.0.9:9000")
	t.Setenv("DIALOG_AUDIO_VOLUME", "40")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "10.0.0.9:9000" {
		t.Errorf("expected env addr, got %s", cfg.Server.Addr)
	}
	if cfg.Audio.Volume != 40 {
		t.Errorf("expected env volume 40, got %d", cfg.Audio.Volume)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("DIALOG_REF", "value")

	tests := []struct {
		in       string
		expected string
	}{
		{"${DIALOG_REF}", "value"},
		{"${DIALOG_UNSET_REF}", "${DIALOG_UNSET_REF}"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := resolveEnvRef(tt.in); got != tt.expected {
			t.Errorf("resolveEnvRef(%q): expected %q, got %q", tt.in, tt.expected, got)
		}
	}
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogging(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"key":"v"`) {
		t.Errorf("expected json record, got %s", out)
	}

	buf.Reset()
	logger = SetupLogging(LoggingConfig{Level: "debug"}, &buf)
	logger.Debug("text record")
	if !strings.Contains(buf.String(), "msg=\"text record\"") {
		t.Errorf("expected text record, got %s", buf.String())
	}
}
