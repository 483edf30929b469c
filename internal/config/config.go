// Package config loads termcastd's on-disk YAML configuration. A missing
// file means defaults, not an error.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of termcastd's configuration file.
type Config struct {
	CasterAddr    string `yaml:"caster_addr"`
	WatcherAddr   string `yaml:"watcher_addr"`
	MOTD          string `yaml:"motd,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	LogFile       string `yaml:"log_file,omitempty"`
	StatsInterval string `yaml:"stats_interval,omitempty"`
}

// Defaults returns the baseline configuration used when no file is present
// and no flag overrides a given field.
func Defaults() Config {
	return Config{
		CasterAddr:    "127.0.0.1:31337",
		WatcherAddr:   "127.0.0.1:2300",
		LogLevel:      "info",
		StatsInterval: "@every 1m",
	}
}

// Load reads path and merges it over Defaults(). A missing file is not an
// error: it yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
