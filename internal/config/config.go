package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	ClinicTimezone string `mapstructure:"CLINIC_TIMEZONE"`
	HolidayCountry string `mapstructure:"HOLIDAY_COUNTRY"`

	SlotSearchMaxResults  int    `mapstructure:"SLOT_SEARCH_MAX_RESULTS"`
	SlotSearchHorizonDays int    `mapstructure:"SLOT_SEARCH_HORIZON_DAYS"`
	ReminderCron          string `mapstructure:"REMINDER_CRON"`
	ReminderLeadHours     int    `mapstructure:"REMINDER_LEAD_HOURS"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

var defaults = map[string]interface{}{
	"PORT":                     "8000",
	"ENV":                      "development",
	"DB_MAX_CONNS":             20,
	"DB_MIN_CONNS":             2,
	"CORS_ORIGINS":             "http://localhost:3000",
	"CLINIC_TIMEZONE":          "UTC",
	"HOLIDAY_COUNTRY":          "US",
	"SLOT_SEARCH_MAX_RESULTS":  5,
	"SLOT_SEARCH_HORIZON_DAYS": 14,
	"REMINDER_CRON":            "0 7 * * *",
	"REMINDER_LEAD_HOURS":      24,
	"REQUEST_TIMEOUT":          "30s",
	"BODY_LIMIT":               "1M",
	"RATE_LIMIT_RPS":           20,
	"RATE_LIMIT_BURST":         40,
	"LOG_LEVEL":                "info",
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"CLINIC_TIMEZONE", "HOLIDAY_COUNTRY",
	"SLOT_SEARCH_MAX_RESULTS", "SLOT_SEARCH_HORIZON_DAYS", "REMINDER_CRON", "REMINDER_LEAD_HOURS",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"LOG_LEVEL", "LOG_FILE",
}

// Load reads the environment, falling back to an optional .env file in the
// working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.HolidayCountry = strings.ToUpper(strings.TrimSpace(cfg.HolidayCountry))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ClinicLocation loads CLINIC_TIMEZONE.
func (c *Config) ClinicLocation() (*time.Location, error) {
	return time.LoadLocation(c.ClinicTimezone)
}

// ReminderLead is the window ahead of now that a reminder pass covers.
func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadHours) * time.Hour
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured, either an issuer or a signing key.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}
	if _, err := c.ClinicLocation(); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	if c.SlotSearchMaxResults <= 0 {
		return fmt.Errorf("SLOT_SEARCH_MAX_RESULTS must be positive, got %d", c.SlotSearchMaxResults)
	}
	if c.SlotSearchHorizonDays <= 0 {
		return fmt.Errorf("SLOT_SEARCH_HORIZON_DAYS must be positive, got %d", c.SlotSearchHorizonDays)
	}
	if c.ReminderLeadHours <= 0 {
		return fmt.Errorf("REMINDER_LEAD_HOURS must be positive, got %d", c.ReminderLeadHours)
	}
	if _, err := cron.ParseStandard(c.ReminderCron); err != nil {
		return fmt.Errorf("REMINDER_CRON %q: %w", c.ReminderCron, err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
