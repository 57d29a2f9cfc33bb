// Package config loads the host's engine configuration from yaml, with
// environment overrides applied on top.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TickRateHz       int    `yaml:"tick_rate_hz" env:"MODHOST_TICK_RATE_HZ"`
	CrashTolerance   int    `yaml:"crash_tolerance" env:"MODHOST_CRASH_TOLERANCE"`
	SecondEveryTicks int    `yaml:"second_every_ticks" env:"MODHOST_SECOND_EVERY_TICKS"`
	LoadPumpLimit    int    `yaml:"load_pump_limit" env:"MODHOST_LOAD_PUMP_LIMIT"`
	LogLevel         string `yaml:"log_level" env:"MODHOST_LOG_LEVEL"`

	DataDir   string `yaml:"data_dir" env:"MODHOST_DATA_DIR"`
	DisableDB bool   `yaml:"disable_db" env:"MODHOST_DISABLE_DB"`
	WSAddr    string `yaml:"ws_addr" env:"MODHOST_WS_ADDR"`
}

func Defaults() Config {
	return Config{
		TickRateHz:       60,
		CrashTolerance:   60,
		SecondEveryTicks: 60,
		LoadPumpLimit:    4096,
		LogLevel:         "info",
		DataDir:          "./data",
		WSAddr:           ":8080",
	}
}

// Load reads yaml config from path (missing file falls back to defaults),
// then applies env overrides.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("host.yaml: %w", err)
		}
	case !os.IsNotExist(err):
		return c, err
	}
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("env overrides: %w", err)
	}
	if c.TickRateHz <= 0 {
		return c, fmt.Errorf("tick_rate_hz must be positive, got %d", c.TickRateHz)
	}
	if c.CrashTolerance <= 0 {
		return c, fmt.Errorf("crash_tolerance must be positive, got %d", c.CrashTolerance)
	}
	return c, nil
}
