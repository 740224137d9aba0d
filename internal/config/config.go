package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultNoticeTTL = 2000 * time.Millisecond

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	ReportInterval time.Duration
	// DigestAt is an optional HH:MM time for a daily digest on top of the
	// interval one.
	DigestAt       string
	HTTPAddr       string
	LogLevel       string
	NoticeTTL      time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:    getEnv("DATABASE_URL", "task_planner.db"),
		ReportInterval: parseInterval(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))),
		DigestAt:       getEnv("DIGEST_AT", ""),
		HTTPAddr:       getEnv("HTTP_ADDR", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		NoticeTTL:      defaultNoticeTTL,
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	if raw := strings.TrimSpace(os.Getenv("NOTICE_TTL_MS")); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return cfg, fmt.Errorf("NOTICE_TTL_MS must be a positive integer, got %q", raw)
		}
		cfg.NoticeTTL = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// Validate checks the settings required by the enabled front-ends.
func (c Config) Validate(botEnabled bool) error {
	if botEnabled && c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if !botEnabled && c.HTTPAddr == "" {
		return fmt.Errorf("nothing to run: bot disabled and HTTP_ADDR empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
