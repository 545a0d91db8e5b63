package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// settings are the eventportd runtime knobs.
type settings struct {
	AdminAddr      string
	CorsOrigins    []string
	ScenarioPath   string
	LogLevel       string
	SettleInterval time.Duration
}

// eventportd config.toml key mapping to settings.
type fileConfig struct {
	AdminAddr      string   `toml:"admin_addr"`
	CorsOrigins    []string `toml:"cors_origins"`
	ScenarioPath   string   `toml:"scenario_path"`
	LogLevel       string   `toml:"log_level"`
	SettleInterval string   `toml:"settle_interval"`
}

func defaultSettings() settings {
	return settings{
		AdminAddr:      "127.0.0.1:7400",
		CorsOrigins:    []string{"http://localhost:3000"},
		LogLevel:       "info",
		SettleInterval: 250 * time.Millisecond,
	}
}

func loadSettings(path string) (settings, error) {
	cfg := defaultSettings()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return settings{}, fmt.Errorf("load eventportd config: %w", err)
	}

	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("scenario_path") {
		cfg.ScenarioPath = resolvePath(path, strings.TrimSpace(raw.ScenarioPath))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("settle_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SettleInterval))
		if err != nil {
			return settings{}, fmt.Errorf("parse settle_interval: %w", err)
		}
		if d < 0 {
			return settings{}, fmt.Errorf("settle_interval must not be negative: %s", d)
		}
		cfg.SettleInterval = d
	}

	if cfg.AdminAddr == "" {
		return settings{}, fmt.Errorf("load eventportd config: admin_addr must not be empty")
	}
	return cfg, nil
}

// resolvePath makes a relative scenario path relative to the config file.
func resolvePath(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
