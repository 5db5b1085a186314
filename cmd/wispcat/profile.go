package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NXWeb-Group/wisp-client-go/types"
)

// profile is the optional YAML file read with --config.
type profile struct {
	URL        string   `yaml:"url"`
	Version    uint8    `yaml:"version"`
	Extensions []string `yaml:"extensions"`
	LogLevel   string   `yaml:"log_level"`
}

func loadProfile(path string) (profile, error) {
	var p profile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

// extensions maps extension names to values. A nil result keeps the
// connection defaults.
func (p profile) extensions() ([]types.Extension, error) {
	if p.Extensions == nil {
		return nil, nil
	}
	exts := make([]types.Extension, 0, len(p.Extensions))
	for _, name := range p.Extensions {
		switch name {
		case "udp":
			exts = append(exts, types.UDPExtension{})
		case "motd":
			exts = append(exts, types.MOTDExtension{})
		default:
			return nil, fmt.Errorf("unknown extension %q", name)
		}
	}
	return exts, nil
}
