package config

import (
	"os"
	"path/filepath"

	kdl "github.com/sblinch/kdl-go"
)

// ProjectConfigFile is the optional project-level override file, discovered
// upward from the working directory the way the KDL-based config in
// comparable CLIs discovers their own dotfile.
const ProjectConfigFile = ".relayinspect.kdl"

// kdlOverride mirrors the subset of Config a project is allowed to pin.
// Zero fields are "not set" and left to the environment/default layer.
type kdlOverride struct {
	DebugHost           string `kdl:"debug-host"`
	DebugPort           int    `kdl:"debug-port"`
	AnnotationPort      int    `kdl:"annotation-port"`
	ConsoleBufferSize   int    `kdl:"console-buffer-size"`
	NetworkBufferSize   int    `kdl:"network-buffer-size"`
	ServerLogBufferSize int    `kdl:"server-log-buffer-size"`
	BrowserPath         string `kdl:"browser-path"`
	LaunchURL           string `kdl:"launch-url"`
}

func (o *kdlOverride) applyTo(cfg *Config) {
	if o.DebugHost != "" {
		cfg.DebugHost = o.DebugHost
	}
	if o.DebugPort != 0 {
		cfg.DebugPort = o.DebugPort
	}
	if o.AnnotationPort != 0 {
		cfg.AnnotationPort = o.AnnotationPort
	}
	if o.ConsoleBufferSize != 0 {
		cfg.ConsoleBufferSize = o.ConsoleBufferSize
	}
	if o.NetworkBufferSize != 0 {
		cfg.NetworkBufferSize = o.NetworkBufferSize
	}
	if o.ServerLogBufferSize != 0 {
		cfg.ServerLogBufferSize = o.ServerLogBufferSize
	}
	if o.BrowserPath != "" {
		cfg.BrowserPath = o.BrowserPath
	}
	if o.LaunchURL != "" {
		cfg.LaunchURL = o.LaunchURL
	}
}

// loadProjectOverride walks upward from the working directory looking for
// ProjectConfigFile, stopping at the filesystem root. Returns nil, nil when
// no override file is found.
func loadProjectOverride() (*kdlOverride, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if data, err := os.ReadFile(path); err == nil {
			var override kdlOverride
			if err := kdl.Unmarshal(data, &override); err != nil {
				return nil, err
			}
			return &override, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}
