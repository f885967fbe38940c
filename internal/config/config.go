package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultServiceAddress is where the companion resource service listens.
const DefaultServiceAddress = "http://127.0.0.1:20112"

// Config captures CLI settings for a project.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Registry   RegistryConfig   `yaml:"registry" json:"registry"`
	Service    ServiceConfig    `yaml:"service" json:"service"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Toolchains ToolchainsConfig `yaml:"toolchains" json:"toolchains"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// RegistryConfig points at the network registry document used when the
// companion service is bypassed.
type RegistryConfig struct {
	URL        string `yaml:"url" json:"url"`
	TimeoutSec int    `yaml:"timeout_s" json:"timeout_s"`
}

// ServiceConfig addresses the local companion service.
type ServiceConfig struct {
	Address    string `yaml:"address" json:"address"`
	TimeoutSec int    `yaml:"timeout_s" json:"timeout_s"`
}

// IndexConfig controls the in-memory packages index cache.
type IndexConfig struct {
	TTLSec int `yaml:"ttl_s" json:"ttl_s"`
}

// ToolchainsConfig maps toolchain name prefixes to merge platform families.
type ToolchainsConfig struct {
	Families map[string]string `yaml:"families,omitempty" json:"families,omitempty"`
}

// LogConfig selects the log verbosity.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version: 1,
		Registry: RegistryConfig{
			TimeoutSec: 30,
		},
		Service: ServiceConfig{
			Address:    DefaultServiceAddress,
			TimeoutSec: 10,
		},
		Index: IndexConfig{
			TTLSec: 3600,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration. Environment overrides are applied last.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyEnv()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyDefaults ensures nested fields fall back to sensible defaults when the
// YAML omits them.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Registry.TimeoutSec == 0 {
		c.Registry.TimeoutSec = defaults.Registry.TimeoutSec
	}
	if strings.TrimSpace(c.Service.Address) == "" {
		c.Service.Address = defaults.Service.Address
	}
	if c.Service.TimeoutSec == 0 {
		c.Service.TimeoutSec = defaults.Service.TimeoutSec
	}
	if c.Index.TTLSec == 0 {
		c.Index.TTLSec = defaults.Index.TTLSec
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// ApplyEnv overlays OPENBLOCK_* environment variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("OPENBLOCK_REGISTRY_URL"); ok && v != "" {
		c.Registry.URL = v
	}
	if v, ok := os.LookupEnv("OPENBLOCK_SERVICE_URL"); ok && v != "" {
		c.Service.Address = v
	}
	if v, ok := os.LookupEnv("OPENBLOCK_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

// RegistryTimeout returns the direct registry fetch timeout.
func (c Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registry.TimeoutSec) * time.Second
}

// ServiceTimeout returns the companion service request timeout.
func (c Config) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSec) * time.Second
}

// IndexTTL returns how long a fetched packages index stays fresh.
func (c Config) IndexTTL() time.Duration {
	return time.Duration(c.Index.TTLSec) * time.Second
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
