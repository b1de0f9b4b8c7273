// Package config provides configuration loading and structs for horomatch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its config file.
const DefaultPath = "/usr/local/etc/horomatch/config.yaml"

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Relay       RelayConfig       `yaml:"relay"`
	Client      ClientConfig      `yaml:"client"`
	Storage     StorageConfig     `yaml:"storage"`
	Search      SearchConfig      `yaml:"search"`
	Counterpart CounterpartConfig `yaml:"counterpart"`
	Subject     SubjectConfig     `yaml:"subject"`
	Extract     ExtractConfig     `yaml:"extract"`
}

// ServerConfig holds the API server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig holds the proxy relay settings.
type RelayConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	BasePath     string        `yaml:"base_path"`
	AuthToken    string        `yaml:"auth_token"`
	SearchURL    string        `yaml:"search_url"`
	MatchURL     string        `yaml:"match_url"`
	NakshatraURL string        `yaml:"nakshatra_url"`
	Origin       string        `yaml:"origin"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// Addr returns host:port.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ClientConfig holds how the orchestrator reaches the relay.
type ClientConfig struct {
	RelayURL          string        `yaml:"relay_url"`
	AuthToken         string        `yaml:"auth_token"`
	Timeout           time.Duration `yaml:"timeout"`
	LocationCacheSize int           `yaml:"location_cache_size"`
}

// StorageConfig selects the persisted store.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	RedisURL     string `yaml:"redis_url"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// SearchConfig tunes the match search.
type SearchConfig struct {
	CandidatesPerRound int           `yaml:"candidates_per_round"`
	Concurrency        int           `yaml:"concurrency"`
	HistoryLimit       int           `yaml:"history_limit"`
	ReplayWindow       time.Duration `yaml:"replay_window"`
	FixedYear          int           `yaml:"fixed_year"`
}

// CounterpartConfig is the fixed identity matched against the subject.
// Its birth year is search.fixed_year.
type CounterpartConfig struct {
	Name     string `yaml:"name"`
	Gender   string `yaml:"gender"`
	Hour     int    `yaml:"hour"`
	Minute   int    `yaml:"minute"`
	AmPm     string `yaml:"ampm"`
	Location string `yaml:"location"`
	Loc      string `yaml:"loc"`
}

// SubjectConfig holds fixed subject attributes.
type SubjectConfig struct {
	Gender string `yaml:"gender"`
}

// ExtractConfig overrides the patterns used on upstream pages.
// Empty patterns use the built-in defaults.
type ExtractConfig struct {
	ScorePattern     string `yaml:"score_pattern"`
	NakshatraPattern string `yaml:"nakshatra_pattern"`
	RasiPattern      string `yaml:"rasi_pattern"`
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := finalize(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) {
	var cfg Config
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	if err := finalize(&cfg, dir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finalize(cfg *Config, configDir string) error {
	if err := ApplyEnv(cfg); err != nil {
		return err
	}
	ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
