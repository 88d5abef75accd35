// Package config holds the dashboard's own configuration plus readers for
// the MMDVMHost and gateway INI files the dashboard observes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root dashboard configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	IniPaths   IniPathsConfig   `yaml:"iniPaths"`
	Processes  ProcessConfig    `yaml:"processNames"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Display    DisplayConfig    `yaml:"display"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCORS"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `yaml:"idleTimeoutSeconds"`
}

// IniPathsConfig locates the INI files of the monitored programs. An empty
// NXDNGateway path disables NXDN monitoring.
type IniPathsConfig struct {
	MMDVM       string `yaml:"mmdvm"`
	DMRGateway  string `yaml:"dmrGateway"`
	YSFGateway  string `yaml:"ysfGateway"`
	P25Gateway  string `yaml:"p25Gateway"`
	NXDNGateway string `yaml:"nxdnGateway"`
}

// ProcessConfig names the processes checked for liveness.
type ProcessConfig struct {
	MMDVMHost   string `yaml:"mmdvmhost"`
	DMRGateway  string `yaml:"dmrgateway"`
	YSFGateway  string `yaml:"ysfgateway"`
	P25Gateway  string `yaml:"p25gateway"`
	NXDNGateway string `yaml:"nxdngateway"`
}

// MonitoringConfig tunes the log monitor.
type MonitoringConfig struct {
	MaxRecentCalls        int `yaml:"maxRecentCalls"`
	MaxEvents             int `yaml:"maxEvents"`
	LogBufferSize         int `yaml:"logBufferSize"`
	PollIntervalMs        int `yaml:"pollIntervalMs"`
	DebounceMs            int `yaml:"debounceMs"`
	BackfillDays          int `yaml:"backfillDays"`
	OverlayRefreshSeconds int `yaml:"overlayRefreshSeconds"`
}

// DisplayConfig controls the LCDproc display-emulation server.
type DisplayConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

// AdvancedConfig contains tuning options.
type AdvancedConfig struct {
	LogLevel             string `yaml:"logLevel"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8080,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
		},
		IniPaths: IniPathsConfig{
			MMDVM:      "/etc/MMDVM.ini",
			DMRGateway: "/etc/DMRGateway.ini",
			YSFGateway: "/etc/YSFGateway.ini",
			P25Gateway: "/etc/P25Gateway.ini",
		},
		Processes: ProcessConfig{
			MMDVMHost:   "mmdvmhost",
			DMRGateway:  "dmrgateway",
			YSFGateway:  "ysfgateway",
			P25Gateway:  "p25gateway",
			NXDNGateway: "nxdngateway",
		},
		Monitoring: MonitoringConfig{
			MaxRecentCalls:        50,
			MaxEvents:             100,
			LogBufferSize:         500,
			PollIntervalMs:        500,
			DebounceMs:            300,
			BackfillDays:          14,
			OverlayRefreshSeconds: 10,
		},
		Display: DisplayConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1",
			Port:        13666,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is not
// an error: the default config is written there and returned.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()

	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# MMDVM Dashboard Configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if path := os.Getenv("MMDVM_INI"); path != "" {
		c.IniPaths.MMDVM = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetDisplayAddr returns the LCDproc server bind address.
func (c *AppConfig) GetDisplayAddr() string {
	return fmt.Sprintf("%s:%d", c.Display.BindAddress, c.Display.Port)
}

// PollInterval returns the tail poll interval as a duration.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Monitoring.PollIntervalMs) * time.Millisecond
}

// Debounce returns the broadcast debounce window as a duration.
func (c *AppConfig) Debounce() time.Duration {
	return time.Duration(c.Monitoring.DebounceMs) * time.Millisecond
}

// OverlayRefresh returns the config overlay refresh interval.
func (c *AppConfig) OverlayRefresh() time.Duration {
	return time.Duration(c.Monitoring.OverlayRefreshSeconds) * time.Second
}
