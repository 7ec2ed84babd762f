// Package config provides XML-based configuration management for the vessel
// monitor server.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"VesselMonitor"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Upstream tracker gateway configuration
	Upstream UpstreamConfig `xml:"Upstream"`

	// Tracking engine configuration
	Tracking TrackingConfig `xml:"Tracking"`

	// Redis calibration store configuration
	Redis RedisConfig `xml:"Redis"`

	// Fleet registry configuration
	Fleet FleetConfig `xml:"Fleet"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
}

// UpstreamConfig points at the tracker gateway feeding this service
type UpstreamConfig struct {
	LiveStreamURL       string `xml:"LiveStreamURL"`
	SnapshotURL         string `xml:"SnapshotURL"`
	PollIntervalSeconds int    `xml:"PollIntervalSeconds"`
}

// TrackingConfig tunes the reconciliation engine
type TrackingConfig struct {
	DeadBandMeters      float64 `xml:"DeadBandMeters"`
	OfflineAfterSeconds int     `xml:"OfflineAfterSeconds"`
	FrameIntervalMs     int     `xml:"FrameIntervalMs"`
	BroadcastIntervalMs int     `xml:"BroadcastIntervalMs"`
}

// RedisConfig locates the calibration override store
type RedisConfig struct {
	Enabled bool   `xml:"Enabled"`
	Addr    string `xml:"Addr"`
	DB      int    `xml:"DB"`
}

// FleetConfig locates the device registry file
type FleetConfig struct {
	RegistryFile string `xml:"RegistryFile"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
		},
		Upstream: UpstreamConfig{
			LiveStreamURL:       "ws://localhost:9500/stream",
			SnapshotURL:         "http://localhost:9500/api/devices",
			PollIntervalSeconds: 5,
		},
		Tracking: TrackingConfig{
			DeadBandMeters:      7,
			OfflineAfterSeconds: 480,
			FrameIntervalMs:     33,
			BroadcastIntervalMs: 200,
		},
		Redis: RedisConfig{
			Enabled: true,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Fleet: FleetConfig{
			RegistryFile: "./data/fleet.yaml",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Vessel Monitor Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// Upstream overrides
	if url := os.Getenv("LIVE_STREAM_URL"); url != "" {
		c.Upstream.LiveStreamURL = url
	}
	if url := os.Getenv("SNAPSHOT_URL"); url != "" {
		c.Upstream.SnapshotURL = url
	}

	// REDIS_ADDR override
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Fleet.RegistryFile != "" && !filepath.IsAbs(c.Fleet.RegistryFile) {
		c.Fleet.RegistryFile = filepath.Join(configDir, c.Fleet.RegistryFile)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}
