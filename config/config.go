/*
Package config loads process configuration from the environment.

PURPOSE:
  One place that reads environment variables. Everything else receives a
  *Config (or values taken from it) at startup; no core package reads
  globals.

SOURCES (later wins):
  1. Defaults below
  2. .env file in the working directory, if present (godotenv)
  3. Process environment
  4. Command-line flags applied by cmd/server

KEYS:
  PORT                 HTTP port                         (8080)
  DB_PATH              SQLite path, ":memory:" allowed   (barstock.db)
  TIMEZONE             IANA zone of the shift calendar   (America/Mexico_City)
  TOLERANCE            reconciliation tolerance, grams   (5)
  POUR_SIZE            pour size used by reports         (1.5)
  UNIT_CATEGORIES      comma list counted in units       (beer, soft drinks, ...)
  CATALOG_PATH         JSON catalog file                 (embedded catalog)
  JWT_SECRET           HS256 secret                      (required)
  REDIS_ADDR           enables Redis locks when set
  REDIS_PASSWORD
  EVIDENCE_PROVIDER    gcs | memory                      (memory)
  GCS_BUCKET           required for gcs
  GCS_CREDENTIALS_JSON optional; ADC otherwise
  LOG_LEVEL            logrus level                      (info)
  ALERT_SCAN_INTERVAL  Go duration, 0 disables           (15m)
  CORS_ORIGINS         comma list                        (*)
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/inventory"
)

const (
	EvidenceGCS    = "gcs"
	EvidenceMemory = "memory"
)

type Config struct {
	Port               int
	DBPath             string
	Timezone           *time.Location
	Tolerance          decimal.Decimal
	PourSize           decimal.Decimal
	UnitCategories     []string
	CatalogPath        string
	JWTSecret          string
	RedisAddr          string
	RedisPassword      string
	EvidenceProvider   string
	GCSBucket          string
	GCSCredentialsJSON string
	LogLevel           logrus.Level
	AlertScanInterval  time.Duration
	CORSOrigins        []string
}

// ReportOptions returns the serving conversion configured for reports.
func (c *Config) ReportOptions() inventory.ReportOptions {
	return inventory.ReportOptions{PourSize: c.PourSize, UnitCategories: c.UnitCategories}
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function. Every malformed key is
// reported, not just the first.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	var errs []error
	cfg := &Config{
		DBPath:             get("DB_PATH", "barstock.db"),
		CatalogPath:        get("CATALOG_PATH", ""),
		JWTSecret:          get("JWT_SECRET", ""),
		RedisAddr:          get("REDIS_ADDR", ""),
		RedisPassword:      get("REDIS_PASSWORD", ""),
		EvidenceProvider:   strings.ToLower(get("EVIDENCE_PROVIDER", EvidenceMemory)),
		GCSBucket:          get("GCS_BUCKET", ""),
		GCSCredentialsJSON: get("GCS_CREDENTIALS_JSON", ""),
		UnitCategories:     splitList(get("UNIT_CATEGORIES", strings.Join(inventory.DefaultReportOptions().UnitCategories, ","))),
		CORSOrigins:        splitList(get("CORS_ORIGINS", "*")),
	}

	port, err := strconv.Atoi(get("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: invalid port %q", get("PORT", "")))
	}
	cfg.Port = port

	if cfg.Timezone, err = time.LoadLocation(get("TIMEZONE", "America/Mexico_City")); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}

	if cfg.Tolerance, err = decimal.NewFromString(get("TOLERANCE", inventory.DefaultTolerance.String())); err != nil || cfg.Tolerance.IsNegative() {
		errs = append(errs, fmt.Errorf("TOLERANCE: must be a non-negative number"))
	}
	if cfg.PourSize, err = decimal.NewFromString(get("POUR_SIZE", "1.5")); err != nil || !cfg.PourSize.IsPositive() {
		errs = append(errs, fmt.Errorf("POUR_SIZE: must be a positive number"))
	}

	if cfg.LogLevel, err = logrus.ParseLevel(get("LOG_LEVEL", "info")); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if cfg.AlertScanInterval, err = time.ParseDuration(get("ALERT_SCAN_INTERVAL", "15m")); err != nil || cfg.AlertScanInterval < 0 {
		errs = append(errs, fmt.Errorf("ALERT_SCAN_INTERVAL: must be a non-negative duration"))
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch cfg.EvidenceProvider {
	case EvidenceMemory:
	case EvidenceGCS:
		if cfg.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required when EVIDENCE_PROVIDER=gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVIDENCE_PROVIDER: unknown provider %q", cfg.EvidenceProvider))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
