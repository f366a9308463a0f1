// Package config loads node configuration from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for one community node.
type Config struct {
	// NodeName is a human-readable label for this node. Shown in status
	// output; never goes on the wire.
	NodeName string `yaml:"node_name"`

	// StorePath is the SQLite database file. Relative paths are resolved
	// against the config file's directory.
	StorePath string `yaml:"store_path"`

	// AuthorKey is the node's 64-char hex author key. Events applied
	// locally are attributed to this key.
	AuthorKey string `yaml:"author_key"`

	// TilePacks lists installed offline tile packs and their dependencies.
	TilePacks []TilePack `yaml:"tile_packs,omitempty"`
}

// TilePack declares one installed map tile pack.
type TilePack struct {
	ID        string   `yaml:"id"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// DefaultStorePath is used when store_path is omitted.
const DefaultStorePath = "selam.db"

// Load reads and parses a node config file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Strict field validation catches typos like "store_paht:".
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.StorePath == "" {
		cfg.StorePath = DefaultStorePath
	}
	if !filepath.IsAbs(cfg.StorePath) {
		cfg.StorePath = filepath.Join(filepath.Dir(path), cfg.StorePath)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to path with 0600 permissions; the author key is
// secret material.
func Save(path string, cfg *Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.AuthorKey == "" {
		return fmt.Errorf("author_key is required")
	}
	if len(cfg.AuthorKey) != 64 {
		return fmt.Errorf("author_key must be 64 hex characters, got %d", len(cfg.AuthorKey))
	}
	for _, r := range cfg.AuthorKey {
		if !isHexDigit(r) {
			return fmt.Errorf("author_key must be lowercase hex")
		}
	}
	seen := map[string]bool{}
	for _, p := range cfg.TilePacks {
		if p.ID == "" {
			return fmt.Errorf("tile pack id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate tile pack %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}
