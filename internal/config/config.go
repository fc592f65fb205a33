// Package config loads tool configuration from shem.toml or shem.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration.
type Config struct {
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	Declarative DeclarativeConfig `toml:"declarative" yaml:"declarative"`
	Migrations  MigrationsConfig  `toml:"migrations" yaml:"migrations"`
}

type DatabaseConfig struct {
	// URL is the target connection string; required unless passed on the
	// command line.
	URL string `toml:"url" yaml:"url"`
}

type DeclarativeConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
	SchemaPaths []string `toml:"schema_paths" yaml:"schema_paths"`
	ShadowPort  int      `toml:"shadow_port" yaml:"shadow_port"`
}

type MigrationsConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Declarative: DeclarativeConfig{
			Enabled:     true,
			SchemaPaths: []string{"./schema/*.sql"},
			ShadowPort:  5432,
		},
		Migrations: MigrationsConfig{
			Dir: "./migrations",
		},
	}
}

// Load reads one configuration file, dispatching on extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .toml or .yaml)", filepath.Ext(path))
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Discover finds shem.toml or shem.yaml in the given directory, falling
// back to defaults when neither exists.
func Discover(dir string) (*Config, error) {
	for _, name := range []string{"shem.toml", "shem.yaml", "shem.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if len(c.Declarative.SchemaPaths) == 0 {
		c.Declarative.SchemaPaths = defaults.Declarative.SchemaPaths
	}
	if c.Declarative.ShadowPort == 0 {
		c.Declarative.ShadowPort = defaults.Declarative.ShadowPort
	}
	if c.Migrations.Dir == "" {
		c.Migrations.Dir = defaults.Migrations.Dir
	}
}

// Validate checks the settings an operation depends on. The database URL
// may come from the command line, so overrideURL wins when set.
func (c *Config) Validate(overrideURL string) error {
	if overrideURL == "" && c.Database.URL == "" {
		return fmt.Errorf("database.url is required (set it in the config file or pass --database-url)")
	}
	return nil
}

// DatabaseURL resolves the effective connection string.
func (c *Config) DatabaseURL(overrideURL string) string {
	if overrideURL != "" {
		return overrideURL
	}
	return c.Database.URL
}
