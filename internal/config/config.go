// Package config loads server configuration from a YAML file. Every sync
// tunable lives here rather than as a constant; the shipped defaults are
// reasonable starting points, not load-tested values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Sync struct {
		// SlotCapacity is the default number of display slots per collage.
		SlotCapacity int `yaml:"slot_capacity"`

		// PollTight is the fallback poll interval while the feed is not
		// confirmed live; PollRelaxed is the safety-net interval while live.
		PollTight   Duration `yaml:"poll_tight"`
		PollRelaxed Duration `yaml:"poll_relaxed"`

		// MaxSilence is how long a live feed may stay quiet before viewers
		// fall back to polling.
		MaxSilence Duration `yaml:"max_silence"`

		// ConfirmTimeout bounds how long a feed subscription may wait for
		// the server's confirmation frame.
		ConfirmTimeout Duration `yaml:"confirm_timeout"`

		BackoffBase Duration `yaml:"backoff_base"`
		BackoffCap  Duration `yaml:"backoff_cap"`
	} `yaml:"sync"`

	Thumbnails struct {
		MaxSize uint `yaml:"max_size"`
	} `yaml:"thumbnails"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Database.Path = "collage.db"
	cfg.Sync.SlotCapacity = 60
	cfg.Sync.PollTight = Duration(2 * time.Second)
	cfg.Sync.PollRelaxed = Duration(30 * time.Second)
	cfg.Sync.MaxSilence = Duration(10 * time.Second)
	cfg.Sync.ConfirmTimeout = Duration(6 * time.Second)
	cfg.Sync.BackoffBase = Duration(1 * time.Second)
	cfg.Sync.BackoffCap = Duration(30 * time.Second)
	cfg.Thumbnails.MaxSize = 300
	return cfg
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
