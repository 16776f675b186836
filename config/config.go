// Package config loads the daemon configuration from a YAML file, with
// defaults suitable for running on localhost.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/goccy/go-yaml"
)

type Config struct {
	// Listen is the address the REST API binds to. The daemon trusts its
	// callers; keep this on a loopback address.
	Listen      string    `yaml:"listen"`
	ParentRange string    `yaml:"parentRange"`
	Log         LogConfig `yaml:"log"`
}

type LogConfig struct {
	// Path of the log file. Empty means stdout only.
	Path       string `yaml:"path,omitempty"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
}

func Default() Config {
	return Config{
		Listen:      "127.0.0.1:3030",
		ParentRange: "10.0.0.0/8",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// Load reads the config file at path, overlaying it on the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parent returns the configured parent allocation range as a canonical
// prefix.
func (c Config) Parent() (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(c.ParentRange)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid parent range %q: %w", c.ParentRange, err)
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("parent range %q is not IPv4", c.ParentRange)
	}
	return prefix.Masked(), nil
}
