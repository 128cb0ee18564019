package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all streamflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath       string `json:"db_path"`
	LogLevel     string `json:"log_level"`
	HealthCron   string `json:"health_cron"`
	HistoryLimit int    `json:"history_limit"`
}

func defaultConfig() Config {
	return Config{
		DBPath:       filepath.Join(streamflowDir(), "streamflow.db"),
		LogLevel:     "info",
		HealthCron:   "*/5 * * * *",
		HistoryLimit: 50,
	}
}

func streamflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".streamflow"
	}
	return filepath.Join(home, ".streamflow")
}

func settingsPath() string {
	return filepath.Join(streamflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STREAMFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STREAMFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STREAMFLOW_HEALTH_CRON"); v != "" {
		cfg.HealthCron = v
	}
	if v := os.Getenv("STREAMFLOW_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}

	return cfg
}
