// Package config provides YAML-based configuration loading for the job
// validator, with environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "jobvalidator.yaml"

// Config is the top-level configuration, loaded from jobvalidator.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Sync      SyncConfig      `yaml:"sync"`
	Notify    NotifyConfig    `yaml:"notify"`
	Lock      LockConfig      `yaml:"lock"`
	Artifact  ArtifactConfig  `yaml:"artifact"`
	Log       LogConfig       `yaml:"log"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DatabaseConfig selects and locates the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=sqlite mysql"`
	Path     string `yaml:"path" env:"JV_DB_PATH"`
	Host     string `yaml:"host" env:"JV_DB_HOST"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	User     string `yaml:"user" env:"JV_DB_USER"`
	Password string `yaml:"password" env:"JV_DB_PASSWORD"`
	Name     string `yaml:"name"`
}

// APIConfig holds Zuper API connection settings.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url" env:"ZUPER_BASE_URL" validate:"required,url"`
	APIKey            string        `yaml:"api_key" env:"ZUPER_API_KEY"`
	PageSize          int           `yaml:"page_size" validate:"gte=1,lte=500"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries        int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryBase         time.Duration `yaml:"retry_base" validate:"gte=0"`
	Concurrency       int           `yaml:"concurrency" validate:"gte=1,lte=200"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
}

// SyncConfig holds the business lists and batching for sync runs.
type SyncConfig struct {
	BatchSize                int            `yaml:"batch_size" validate:"gte=1"`
	AllowedCategories        []string       `yaml:"allowed_categories" validate:"required,min=1,dive,required"`
	SkipValidationCategories []string       `yaml:"skip_validation_categories"`
	ConsumableTerms          []string       `yaml:"consumable_terms"`
	NotifyWindow             time.Duration  `yaml:"notify_window" validate:"gte=0"`
	Schedule                 ScheduleConfig `yaml:"schedule"`
}

// ScheduleConfig holds 5-field cron expressions for the schedule daemon.
type ScheduleConfig struct {
	Incremental string `yaml:"incremental"`
	Full        string `yaml:"full"`
}

// NotifyConfig configures the chat webhook. An empty URL disables notifications.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"SLACK_WEBHOOK_URL" validate:"omitempty,url"`
	Channel    string        `yaml:"channel" validate:"oneof=auto slack discord webhook"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
}

// LockConfig configures the cross-process sync lock. An empty RedisAddr
// falls back to an in-process lock.
type LockConfig struct {
	RedisAddr string        `yaml:"redis_addr" env:"JV_REDIS_ADDR"`
	Key       string        `yaml:"key"`
	TTL       time.Duration `yaml:"ttl" validate:"gt=0"`
}

// ArtifactConfig locates the GitHub Actions artifact holding a prebuilt database.
type ArtifactConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Name  string `yaml:"name"`
	Token string `yaml:"token" env:"GITHUB_TOKEN"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `yaml:"level" env:"JV_LOG_LEVEL" validate:"oneof=trace debug info warn warning error"`
	Format     string `yaml:"format" validate:"oneof=auto json text"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DashboardConfig configures the read-only HTTP API.
type DashboardConfig struct {
	Port        int      `yaml:"port" validate:"gte=0,lte=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default business lists.
var (
	DefaultAllowedCategories = []string{
		"LaserWeeder Service Call",
		"WM Service - In Field",
		"WM Repair - In Shop",
	}
	DefaultSkipValidationCategories = []string{"field requires parts", "reaper pm", "slayer pm"}
	DefaultConsumableTerms          = []string{"consumable", "consumables", "supplies", "service"}
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a YAML config file from path and returns a validated Config.
// A .env file in the working directory, if present, is loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Environment
// variables override file values.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "jobs.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "jobvalidator"
		}
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://us-west-1c.zuperpro.com"
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.PageSize == 0 {
		c.API.PageSize = 100
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = 3
	}
	if c.API.RetryBase == 0 {
		c.API.RetryBase = time.Second
	}
	if c.API.Concurrency == 0 {
		c.API.Concurrency = 20
	}

	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 150
	}
	if len(c.Sync.AllowedCategories) == 0 {
		c.Sync.AllowedCategories = append([]string(nil), DefaultAllowedCategories...)
	}
	if c.Sync.SkipValidationCategories == nil {
		c.Sync.SkipValidationCategories = append([]string(nil), DefaultSkipValidationCategories...)
	}
	if c.Sync.ConsumableTerms == nil {
		c.Sync.ConsumableTerms = append([]string(nil), DefaultConsumableTerms...)
	}
	if c.Sync.NotifyWindow == 0 {
		c.Sync.NotifyWindow = 48 * time.Hour
	}

	if c.Notify.Channel == "" {
		c.Notify.Channel = "auto"
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}

	if c.Lock.Key == "" {
		c.Lock.Key = "jobvalidator:sync"
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = 5 * time.Minute
	}

	if c.Artifact.Name == "" {
		c.Artifact.Name = "jobs-database"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks struct tags plus cross-field rules and joins every problem
// into one error.
func (c *Config) validate() error {
	var errs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: validate: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		errs = append(errs, "database.path is required for sqlite")
	}
	if c.Database.Driver == "mysql" && c.Database.User == "" {
		errs = append(errs, "database.user is required for mysql")
	}
	if (c.Artifact.Owner == "") != (c.Artifact.Repo == "") {
		errs = append(errs, "artifact.owner and artifact.repo must be set together")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// describe renders a validator error using the YAML-style field path.
func describe(fe validator.FieldError) string {
	path := strings.TrimPrefix(fe.Namespace(), "Config.")
	path = strings.ToLower(path)
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", path, fe.Tag())
}

// RequireAPIKey reports an error when no API key is configured. Only
// commands that talk to the API need it.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.API.APIKey) == "" {
		return fmt.Errorf("config: api.api_key is required (or set ZUPER_API_KEY)")
	}
	return nil
}
