package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rendis/canvasflow/internal/expressions"
)

// Config holds all canvasflow CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath           string `json:"db_path"`
	LogLevel         string `json:"log_level"`
	ExpressionEngine string `json:"expression_engine"`
	Strict           bool   `json:"strict"`
	Concurrency      int    `json:"concurrency"`
	// ActionsFile is an optional action catalog; AutomatedTask nodes are
	// checked against it when set.
	ActionsFile string `json:"actions_file,omitempty"`
}

func defaultConfig(dir string) Config {
	return Config{
		DBPath:           filepath.Join(dir, "canvasflow.db"),
		LogLevel:         "info",
		ExpressionEngine: expressions.LanguageExpr,
		Concurrency:      4,
	}
}

func canvasflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".canvasflow"
	}
	return filepath.Join(home, ".canvasflow")
}

func settingsPath(dir string) string {
	return filepath.Join(dir, "settings.json")
}

func loadConfig() (Config, error) {
	return loadConfigFrom(canvasflowDir(), os.Getenv)
}

// loadConfigFrom layers dir/settings.json and the CANVASFLOW_* variables
// read through getenv over the defaults. A missing settings file is not an
// error; a malformed one is.
func loadConfigFrom(dir string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig(dir)

	// Layer 2: settings.json.
	path := settingsPath(dir)
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Layer 3: env vars override.
	if v := getenv("CANVASFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("CANVASFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("CANVASFLOW_EXPRESSION_ENGINE"); v != "" {
		cfg.ExpressionEngine = v
	}
	if v := getenv("CANVASFLOW_STRICT"); v != "" {
		cfg.Strict = v == "true" || v == "1"
	}
	if v := getenv("CANVASFLOW_ACTIONS_FILE"); v != "" {
		cfg.ActionsFile = v
	}
	if v := getenv("CANVASFLOW_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("CANVASFLOW_CONCURRENCY: %q is not a number", v)
		}
		cfg.Concurrency = n
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg, nil
}

// saveConfig writes cfg to dir/settings.json, creating dir when needed.
func saveConfig(dir string, cfg Config) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	path := settingsPath(dir)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	return path, nil
}

// changedFields lists the settings keys whose values differ between old
// and new.
func changedFields(old, new Config) []string {
	var changed []string
	if old.DBPath != new.DBPath {
		changed = append(changed, "db_path")
	}
	if old.LogLevel != new.LogLevel {
		changed = append(changed, "log_level")
	}
	if old.ExpressionEngine != new.ExpressionEngine {
		changed = append(changed, "expression_engine")
	}
	if old.Strict != new.Strict {
		changed = append(changed, "strict")
	}
	if old.Concurrency != new.Concurrency {
		changed = append(changed, "concurrency")
	}
	if old.ActionsFile != new.ActionsFile {
		changed = append(changed, "actions_file")
	}
	return changed
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: use debug, info, warn or error", s)
	}
	return level, nil
}
