package rehydra

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Config is the file form of the render options, usually kept in a
// rehydra.toml next to the application's templates:
//
//	keep-markers = true
//	verify-markers = true
//	log-level = "debug"
//	max-frame-depth = 256
type Config struct {
	KeepMarkers   *bool  `toml:"keep-markers"`
	VerifyMarkers *bool  `toml:"verify-markers"`
	LogLevel      string `toml:"log-level"`
	MaxFrameDepth int    `toml:"max-frame-depth"`
}

// ParseConfig decodes TOML configuration. Unknown keys are an error.
func ParseConfig(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that decoding alone cannot.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log-level %q: %w", c.LogLevel, err)
		}
	}
	if c.MaxFrameDepth < 0 {
		return fmt.Errorf("invalid max-frame-depth %d", c.MaxFrameDepth)
	}
	return nil
}

// LoadConfig reads and decodes a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := ParseConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Options converts the configuration into render options. A log level
// writes JSON events to stderr.
func (c *Config) Options() []Option {
	var opts []Option
	if c.KeepMarkers != nil {
		opts = append(opts, WithKeepMarkers(*c.KeepMarkers))
	}
	if c.VerifyMarkers != nil {
		opts = append(opts, WithVerifyMarkers(*c.VerifyMarkers))
	}
	if c.LogLevel != "" {
		if level, err := zerolog.ParseLevel(c.LogLevel); err == nil {
			opts = append(opts, WithLogger(zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()))
		}
	}
	if c.MaxFrameDepth > 0 {
		opts = append(opts, WithMaxFrameDepth(c.MaxFrameDepth))
	}
	return opts
}

// WithConfig applies a decoded configuration. Options given after it
// override its values.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		if cfg == nil {
			return
		}
		for _, opt := range cfg.Options() {
			opt(o)
		}
	}
}
