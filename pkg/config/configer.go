package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// CurrentV is the config.toml schema version this build reads and
	// writes. Files that omit version are treated as current.
	CurrentV = 0
)

// Configer reads and edits config.toml inside a resolved .parley/ directory.
type Configer struct {
	path string
}

// NewConfiger resolves the .parley/ directory, preferring override, and
// returns a Configer for config.toml inside it. The file need not exist.
func NewConfiger(override string) (*Configer, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return &Configer{path: path}, nil
}

// Path is the config.toml location.
func (c *Configer) Path() string {
	return c.path
}

// LoadConfig returns the defaults overlaid with whatever config.toml sets.
// Strings and numbers written empty or zero fall back to their default.
func (c *Configer) LoadConfig() (*Config, error) {
	cfg := NewDefaultConfig()
	if c.path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := decodeConfig(data, cfg); err != nil {
		return nil, err
	}
	fillBlanks(cfg, NewDefaultConfig())
	return cfg, nil
}

// fillBlanks copies def's value into every key cfg renders as "".
// Booleans always render, so they are never replaced.
func fillBlanks(cfg, def *Config) {
	for _, info := range configKeys {
		if info.get(cfg) != "" {
			continue
		}
		if v := info.get(def); v != "" {
			_ = info.set(cfg, v)
		}
	}
}

// SaveConfig encodes cfg over config.toml.
func (c *Configer) SaveConfig(cfg *Config) error {
	switch {
	case cfg == nil:
		return errors.New("cannot save nil config")
	case c.path == "":
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(c.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue parses value for the dotted key and saves the result.
func (c *Configer) SetConfigValue(key, value string) error {
	info, err := lookupKey(key)
	if err != nil {
		return err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}
	if err := info.set(cfg, value); err != nil {
		return err
	}
	return c.SaveConfig(cfg)
}

// GetConfigValue renders the effective value of the dotted key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, err := lookupKey(key)
	if err != nil {
		return "", err
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}
	return info.get(cfg), nil
}

// Value renders cfg's value for the dotted key the way config get shows it.
func (cfg *Config) Value(key string) (string, error) {
	info, err := lookupKey(key)
	if err != nil {
		return "", err
	}
	return info.get(cfg), nil
}

func lookupKey(key string) (configKeyInfo, error) {
	info, ok := configKeys[key]
	if !ok {
		return configKeyInfo{}, fmt.Errorf("unknown config key: %q", key)
	}
	return info, nil
}

// ValidConfigKeys lists every dotted key in config.toml section order.
func ValidConfigKeys() []string {
	out := make([]string, 0, len(orderedKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// ParseConfigTOML decodes a config.toml body without applying defaults.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := decodeConfig(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config TOML: %w", err)
	}
	if cfg.Version != CurrentV {
		return fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}
	return nil
}
