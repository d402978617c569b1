// Package config loads and validates environment variables at startup.
// Fail-fast: if a variable is missing or malformed, the process exits.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all runtime configuration for the aggregator service.
type Config struct {
	Port        string `validate:"required,numeric"`
	StoreDriver string `validate:"oneof=postgres memory"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	RedisURL    string // optional: enables Redis load statuses and sync events
	LogLevel    string `validate:"oneof=trace debug info warn warning error"`
	AdminToken  string // optional: required as x-admin-token when set
	AutoMigrate bool

	ApifyToken     string
	ApifyKeywords  string
	ApifyLocation  string
	USAJobsAPIKey  string
	USAJobsEmail   string `validate:"required_with=USAJobsAPIKey"`
	FindWorkAPIKey string
	// GreenhouseBoards are board tokens for the Greenhouse actor, e.g. "stripe".
	GreenhouseBoards []string

	IncrementalSyncSpec string `validate:"required,cronspec"`
	FullSyncSpec        string `validate:"required,cronspec"`
	MaintenanceSpec     string `validate:"required,cronspec"`
	SyncOnStart         bool

	StaleAfterDays  int `validate:"min=1"`
	ExpireAfterDays int `validate:"gtfield=StaleAfterDays"`
}

// Load reads .env (when present) and the environment, and returns a
// validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	staleDays, err := intEnv("STALE_AFTER_DAYS", 60)
	if err != nil {
		return nil, err
	}
	expireDays, err := intEnv("EXPIRE_AFTER_DAYS", 90)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := boolEnv("AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}
	syncOnStart, err := boolEnv("SYNC_ON_START", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        strEnv("AGGREGATOR_PORT", "8083"),
		StoreDriver: strEnv("STORE_DRIVER", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LogLevel:    strings.ToLower(strEnv("LOG_LEVEL", "info")),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
		AutoMigrate: autoMigrate,

		ApifyToken:       os.Getenv("APIFY_TOKEN"),
		ApifyKeywords:    strEnv("APIFY_SEARCH_KEYWORDS", "software engineer"),
		ApifyLocation:    strEnv("APIFY_SEARCH_LOCATION", "Remote"),
		USAJobsAPIKey:    os.Getenv("USAJOBS_API_KEY"),
		USAJobsEmail:     os.Getenv("USAJOBS_USER_AGENT"),
		FindWorkAPIKey:   os.Getenv("FINDWORK_API_KEY"),
		GreenhouseBoards: listEnv("GREENHOUSE_BOARDS"),

		IncrementalSyncSpec: strEnv("INCREMENTAL_SYNC_SPEC", "@every 2h"),
		FullSyncSpec:        strEnv("FULL_SYNC_SPEC", "0 3 * * *"),
		MaintenanceSpec:     strEnv("MAINTENANCE_SPEC", "30 4 * * *"),
		SyncOnStart:         syncOnStart,

		StaleAfterDays:  staleDays,
		ExpireAfterDays: expireDays,
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(FormatValidationErrors(err), "; "))
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// FormatValidationErrors turns validator errors into one line per field.
func FormatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (%s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

func strEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, s)
	}
	return v, nil
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
