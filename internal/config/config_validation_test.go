package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Defaults should validate, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"empty data directory", func(c *Config) { c.Storage.DataDirectory = " " }, "data_directory"},
		{"empty database", func(c *Config) { c.Storage.Database = "" }, "storage.database"},
		{"relative database path", func(c *Config) { c.Storage.Database = "db/recordings.db" }, "file name or an absolute path"},
		{"web platform", func(c *Config) { c.Capture.Platform = "web" }, "capture.platform"},
		{"unknown platform", func(c *Config) { c.Capture.Platform = "symbian" }, "capture.platform"},
		{"missing input device", func(c *Config) { c.Capture.InputDevice = "" }, "input_device"},
		{"zero capture interval", func(c *Config) { c.Capture.StatusInterval = 0 }, "capture.status_interval"},
		{"missing ffprobe", func(c *Config) { c.Playback.FFprobePath = "" }, "ffprobe_path"},
		{"negative playback interval", func(c *Config) { c.Playback.StatusInterval = -time.Second }, "playback.status_interval"},
		{"non-numeric port", func(c *Config) { c.Server.Port = "http" }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := createTempConfig(t, `
capture:
  platform: web
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error for web platform")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("Expected wrapped validation error, got: %v", err)
	}
}

// Helper function to create temporary config file for testing
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "audiorec-test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	if err := tmpfile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	return tmpfile.Name()
}
