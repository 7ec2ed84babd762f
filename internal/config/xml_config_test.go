package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VesselMonitor.config")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Tracking.DeadBandMeters != 7 {
		t.Errorf("Expected default dead-band 7m, got %f", cfg.Tracking.DeadBandMeters)
	}
	if cfg.Tracking.OfflineAfterSeconds != 480 {
		t.Errorf("Expected default offline threshold 480s, got %d", cfg.Tracking.OfflineAfterSeconds)
	}
	if cfg.Upstream.PollIntervalSeconds != 5 {
		t.Errorf("Expected default poll interval 5s, got %d", cfg.Upstream.PollIntervalSeconds)
	}

	// The default file must have been written for the next run.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file to be auto-generated: %v", err)
	}
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VesselMonitor.config")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<VesselMonitor>
  <Server>
    <Port>9999</Port>
    <BindAddress>127.0.0.1</BindAddress>
  </Server>
  <Upstream>
    <LiveStreamURL>ws://gateway:9500/stream</LiveStreamURL>
    <PollIntervalSeconds>7</PollIntervalSeconds>
  </Upstream>
  <Fleet>
    <RegistryFile>fleet.yaml</RegistryFile>
  </Fleet>
</VesselMonitor>`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.LiveStreamURL != "ws://gateway:9500/stream" {
		t.Errorf("Unexpected stream URL: %s", cfg.Upstream.LiveStreamURL)
	}
	if cfg.GetServerAddr() != "127.0.0.1:9999" {
		t.Errorf("Unexpected server addr: %s", cfg.GetServerAddr())
	}
	// Relative registry path resolved against the config directory.
	if !filepath.IsAbs(cfg.Fleet.RegistryFile) {
		t.Errorf("Expected registry path resolved, got %s", cfg.Fleet.RegistryFile)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VesselMonitor.config")
	if err := os.WriteFile(path, []byte("<VesselMonitor><Server>"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed config")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("LIVE_STREAM_URL", "ws://override:1/stream")

	path := filepath.Join(t.TempDir(), "VesselMonitor.config")
	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Server.Port != 7777 {
		t.Errorf("Expected PORT override, got %d", loaded.Server.Port)
	}
	if loaded.Upstream.LiveStreamURL != "ws://override:1/stream" {
		t.Errorf("Expected LIVE_STREAM_URL override, got %s", loaded.Upstream.LiveStreamURL)
	}
}
