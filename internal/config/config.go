// Package config holds the explicit configuration passed to providers,
// the remote transport and the CLI. Nothing here is process-global.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigs.k8s.io/yaml"
)

// Executor names accepted by ProviderConfig.Executor.
const (
	ExecutorDirect    = "direct"
	ExecutorScheduled = "scheduled"
)

// Config is the persistent application configuration
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Remote   RemoteConfig   `json:"remote"`
	Store    StoreConfig    `json:"store"`
	Log      LogConfig      `json:"log"`
}

// ProviderConfig tunes local sorting and caching.
type ProviderConfig struct {
	Executor        string `json:"executor"`          // "direct" or "scheduled"
	Workers         int    `json:"workers"`           // scheduled executor pool size, <=0 means NumCPU
	CacheCapacity   int    `json:"cache_capacity"`    // LRU entries for derived values
	MaxSortCriteria int    `json:"max_sort_criteria"` // 0 = unlimited
	NullsFirst      bool   `json:"nulls_first"`       // place missing values before present ones
}

// RemoteConfig configures the HTTP transport used by remote providers.
type RemoteConfig struct {
	Endpoint          string   `json:"endpoint"`
	RequestsPerSecond float64  `json:"requests_per_second"` // <=0 means unlimited
	Timeout           Duration `json:"timeout"`
	Listen            string   `json:"listen"` // address for `lineup serve`
}

// StoreConfig points at the sqlite database backing the server.
type StoreConfig struct {
	Path string `json:"path"`
}

// LogConfig controls the charmbracelet logger.
type LogConfig struct {
	Level string `json:"level"`
	Dir   string `json:"dir,omitempty"` // empty = stderr for CLI commands
}

// Duration is a time.Duration that marshals as a string ("30s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Bare numbers are seconds.
		var n float64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Executor:      ExecutorDirect,
			CacheCapacity: 1024,
		},
		Remote: RemoteConfig{
			Endpoint:          "http://localhost:8417",
			RequestsPerSecond: 20,
			Timeout:           Duration(30 * time.Second),
			Listen:            ":8417",
		},
		Store: StoreConfig{
			Path: ":memory:",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects settings that would make a component fail later.
func (c *Config) Validate() error {
	switch c.Provider.Executor {
	case ExecutorDirect, ExecutorScheduled:
	default:
		return fmt.Errorf("config: unknown executor %q", c.Provider.Executor)
	}
	if c.Provider.CacheCapacity <= 0 {
		return fmt.Errorf("config: cache_capacity must be positive, got %d", c.Provider.CacheCapacity)
	}
	if c.Provider.MaxSortCriteria < 0 {
		return fmt.Errorf("config: max_sort_criteria must not be negative")
	}
	return nil
}

// ConfigPath returns the path to the default config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lineup", "config.json")
}

// Load reads config from path, or returns defaults when the file is absent.
// Files ending in .yaml or .yml are decoded as YAML; anything else as JSON.
// Missing fields keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
