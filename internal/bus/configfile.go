package bus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of Config. Durations are written in Go
// duration syntax ("30s", "250ms"). Pointer fields distinguish an
// absent key, which keeps its default, from an explicit zero.
type fileConfig struct {
	MaxRetained         *int    `yaml:"maxRetained"`
	MaxMessageSize      *int    `yaml:"maxMessageSize"`
	MaxPayloadSize      *int    `yaml:"maxPayloadSize"`
	CleanupInterval     *string `yaml:"cleanupInterval"`
	RateLimit           *int    `yaml:"rateLimit"`
	RateLimitWindow     *string `yaml:"rateLimitWindow"`
	AllowGlobalWildcard *bool   `yaml:"allowGlobalWildcard"`
	Debug               *bool   `yaml:"debug"`
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig.
// Unknown keys and malformed durations are errors; the returned Config
// has already passed Validate.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config bytes. See LoadConfig.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg := DefaultConfig()
	if fc.MaxRetained != nil {
		cfg.MaxRetained = *fc.MaxRetained
	}
	if fc.MaxMessageSize != nil {
		cfg.MaxMessageSize = *fc.MaxMessageSize
	}
	if fc.MaxPayloadSize != nil {
		cfg.MaxPayloadSize = *fc.MaxPayloadSize
	}
	if fc.CleanupInterval != nil {
		d, err := time.ParseDuration(*fc.CleanupInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parsing cleanupInterval: %w", err)
		}
		cfg.CleanupInterval = d
	}
	if fc.RateLimit != nil {
		cfg.RateLimit = *fc.RateLimit
	}
	if fc.RateLimitWindow != nil {
		d, err := time.ParseDuration(*fc.RateLimitWindow)
		if err != nil {
			return Config{}, fmt.Errorf("parsing rateLimitWindow: %w", err)
		}
		cfg.RateLimitWindow = d
	}
	if fc.AllowGlobalWildcard != nil {
		cfg.AllowGlobalWildcard = *fc.AllowGlobalWildcard
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
