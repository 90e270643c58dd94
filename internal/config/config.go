// Package config holds process-wide configuration read from the
// environment (the canonical source) with an optional project-level KDL
// override file for values a repository wants to pin.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variable names recognized at startup.
const (
	EnvDebugHost           = "RELAYINSPECT_DEBUG_HOST"
	EnvDebugPort           = "RELAYINSPECT_DEBUG_PORT"
	EnvAutoLaunch          = "RELAYINSPECT_AUTO_LAUNCH"
	EnvBrowserPath         = "RELAYINSPECT_BROWSER_PATH"
	EnvLaunchURL           = "RELAYINSPECT_LAUNCH_URL"
	EnvDirectWSURL         = "RELAYINSPECT_WS_URL"
	EnvConsoleBufferSize   = "RELAYINSPECT_CONSOLE_BUFFER_SIZE"
	EnvNetworkBufferSize   = "RELAYINSPECT_NETWORK_BUFFER_SIZE"
	EnvServerLogBufferSize = "RELAYINSPECT_SERVER_LOG_BUFFER_SIZE"
	EnvAnnotationPort      = "RELAYINSPECT_ANNOTATION_PORT"
)

// Config holds the complete process configuration.
type Config struct {
	DebugHost  string
	DebugPort  int
	AutoLaunch bool

	BrowserPath string // override; empty means auto-discover
	LaunchURL   string // opened on auto-launch; empty means blank tab
	DirectWSURL string // bypasses discovery and auto-launch entirely

	ConsoleBufferSize   int
	NetworkBufferSize   int
	ServerLogBufferSize int

	AnnotationPort int
}

// Default returns the configuration with every documented default applied.
func Default() *Config {
	return &Config{
		DebugHost:           "localhost",
		DebugPort:           9222,
		AutoLaunch:          true,
		ConsoleBufferSize:   500,
		NetworkBufferSize:   200,
		ServerLogBufferSize: 1000,
		AnnotationPort:      9223,
	}
}

// FromEnv builds a Config from Default(), a project-level KDL override file
// if one is discoverable from the working directory, and then the
// environment — in that precedence order, lowest to highest.
func FromEnv() (*Config, error) {
	cfg := Default()

	if override, err := loadProjectOverride(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	} else if override != nil {
		override.applyTo(cfg)
	}

	if v := os.Getenv(EnvDebugHost); v != "" {
		cfg.DebugHost = v
	}
	if v := os.Getenv(EnvDebugPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvDebugPort, err)
		}
		cfg.DebugPort = port
	}
	if v := os.Getenv(EnvAutoLaunch); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvAutoLaunch, err)
		}
		cfg.AutoLaunch = b
	}
	if v := os.Getenv(EnvBrowserPath); v != "" {
		cfg.BrowserPath = v
	}
	if v := os.Getenv(EnvLaunchURL); v != "" {
		cfg.LaunchURL = v
	}
	if v := os.Getenv(EnvDirectWSURL); v != "" {
		cfg.DirectWSURL = v
	}
	if v := os.Getenv(EnvConsoleBufferSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvConsoleBufferSize, err)
		}
		cfg.ConsoleBufferSize = n
	}
	if v := os.Getenv(EnvNetworkBufferSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvNetworkBufferSize, err)
		}
		cfg.NetworkBufferSize = n
	}
	if v := os.Getenv(EnvServerLogBufferSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvServerLogBufferSize, err)
		}
		cfg.ServerLogBufferSize = n
	}
	if v := os.Getenv(EnvAnnotationPort); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", EnvAnnotationPort, err)
		}
		cfg.AnnotationPort = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency, self-healing values
// that are merely non-ideal rather than rejecting the process outright.
func (c *Config) Validate() error {
	if c.DebugPort <= 0 || c.DebugPort > 65535 {
		return fmt.Errorf("config: %s must be in 1..65535, got %d", EnvDebugPort, c.DebugPort)
	}
	if c.AnnotationPort <= 0 || c.AnnotationPort > 65532 {
		return fmt.Errorf("config: %s must be in 1..65532, got %d", EnvAnnotationPort, c.AnnotationPort)
	}
	if c.ConsoleBufferSize <= 0 {
		c.ConsoleBufferSize = 500
	}
	if c.NetworkBufferSize <= 0 {
		c.NetworkBufferSize = 200
	}
	if c.ServerLogBufferSize <= 0 {
		c.ServerLogBufferSize = 1000
	}
	if c.DebugHost == "" {
		c.DebugHost = "localhost"
	}
	return nil
}
