/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// SchedulePath is the YAML schedule configuration file.
	SchedulePath string
	// DBPath is the sqlite file persisting room state.
	DBPath string

	// Home Assistant connection
	HassURL   string
	HassToken string

	// Timezone for schedule evaluation; empty means the system local zone.
	Timezone string

	// RescheduleDelay postpones re-evaluation after a manual entity change.
	RescheduleDelay time.Duration
}

// Load reads environment variables, applies defaults, and validates the
// result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnv("HEARTH_ENV", "development"),
		HTTPBind:        getEnv("HEARTH_HTTP_BIND", "0.0.0.0"),
		HTTPPort:        getEnvInt("HEARTH_HTTP_PORT", 8120),
		SchedulePath:    getEnv("HEARTH_SCHEDULE", "./hearth.yaml"),
		DBPath:          getEnv("HEARTH_DB_PATH", "./hearth.db"),
		HassURL:         getEnv("HEARTH_HASS_URL", "ws://localhost:8123/api/websocket"),
		HassToken:       getEnv("HEARTH_HASS_TOKEN", ""),
		Timezone:        getEnv("HEARTH_TIMEZONE", ""),
		RescheduleDelay: time.Duration(getEnvInt("HEARTH_RESCHEDULE_DELAY_SECONDS", 0)) * time.Second,
	}

	if cfg.SchedulePath == "" {
		return nil, fmt.Errorf("HEARTH_SCHEDULE must be provided")
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("HEARTH_TIMEZONE %q: %w", cfg.Timezone, err)
		}
	}
	return cfg, nil
}

// RequireHass validates the upstream connection settings; only the serve
// command needs them.
func (c *Config) RequireHass() error {
	if c.HassURL == "" {
		return fmt.Errorf("HEARTH_HASS_URL must be provided")
	}
	if c.HassToken == "" {
		return fmt.Errorf("HEARTH_HASS_TOKEN must be provided")
	}
	return nil
}

// Location returns the evaluation timezone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return def
}
