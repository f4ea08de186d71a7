// Package config loads the flat environment-driven configuration struct
// every service in this module is constructed from, the way
// cmd/api/main.go's Config struct did in the teacher repo.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-supplied setting named in spec.md §6 plus
// the defaults the calculation engines fall back to when a rate lookup or
// employee record leaves a value unset.
type Config struct {
	DatabaseURL        string `yaml:"database_url"`
	TenantSchemaPrefix string `yaml:"tenant_schema_prefix"`

	DefaultPrefecture              string `yaml:"default_prefecture"`
	StatutoryWorkDaysDefault       int    `yaml:"statutory_work_days_default"`
	MonthlyPrescribedHoursDefault  int    `yaml:"monthly_prescribed_hours_default"`
	CommuteNonTaxableLimitDefault  int64  `yaml:"commute_nontaxable_limit_default"`
	IncomeTaxFallbackRateOtsuHei   string `yaml:"income_tax_fallback_rate_otsu_hei"`

	EncryptionKey string `yaml:"encryption_key"`
	ExportTimezone string `yaml:"export_timezone"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration's built-in defaults; Load overlays
// environment variables and an optional YAML file on top of it.
func Default() Config {
	return Config{
		TenantSchemaPrefix:            "tenant",
		DefaultPrefecture:             "東京都",
		StatutoryWorkDaysDefault:      20,
		MonthlyPrescribedHoursDefault: 160,
		CommuteNonTaxableLimitDefault: 150000,
		IncomeTaxFallbackRateOtsuHei:  "0.0358",
		ExportTimezone:                "Asia/Tokyo",
		LogLevel:                      "info",
	}
}

// Load builds a Config from the process environment, optionally overlaid by
// a YAML file at path (when path is non-empty and exists). Environment
// variables always win over the file, mirroring the teacher's
// env-first loadConfig().
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	overlayString(&cfg.DatabaseURL, "DATABASE_URL")
	overlayString(&cfg.TenantSchemaPrefix, "TENANT_SCHEMA_PREFIX")
	overlayString(&cfg.DefaultPrefecture, "DEFAULT_PREFECTURE")
	overlayInt(&cfg.StatutoryWorkDaysDefault, "STATUTORY_WORK_DAYS_DEFAULT")
	overlayInt(&cfg.MonthlyPrescribedHoursDefault, "MONTHLY_PRESCRIBED_HOURS_DEFAULT")
	overlayInt64(&cfg.CommuteNonTaxableLimitDefault, "COMMUTE_NONTAXABLE_LIMIT_DEFAULT")
	overlayString(&cfg.IncomeTaxFallbackRateOtsuHei, "INCOME_TAX_FALLBACK_RATE_OTSU_HEI")
	overlayString(&cfg.EncryptionKey, "ENCRYPTION_KEY")
	overlayString(&cfg.ExportTimezone, "EXPORT_TIMEZONE")
	overlayString(&cfg.LogLevel, "LOG_LEVEL")

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("database_url is required")
	}
	return cfg, nil
}

func overlayString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func overlayInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overlayInt64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
