package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	ProviderLocal   = "local"
	ProviderCognito = "cognito"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBDriver      string `mapstructure:"DB_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBDebug       bool   `mapstructure:"DB_DEBUG"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

	IdentityProvider    string `mapstructure:"IDENTITY_PROVIDER"`
	CognitoClientID     string `mapstructure:"COGNITO_CLIENT_ID"`
	CognitoClientSecret string `mapstructure:"COGNITO_CLIENT_SECRET"`
	CognitoUserPoolID   string `mapstructure:"COGNITO_USER_POOL_ID"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	StrictSlots        bool   `mapstructure:"STRICT_SLOTS"`
	ClinicTimezone     string `mapstructure:"CLINIC_TIMEZONE"`
	BookingHorizonDays int    `mapstructure:"BOOKING_HORIZON_DAYS"`
	SlotMinutes        int    `mapstructure:"SLOT_MINUTES"`
	OpenHour           int    `mapstructure:"OPEN_HOUR"`
	CloseHour          int    `mapstructure:"CLOSE_HOUR"`
}

var keys = []string{
	"PORT", "LOG_LEVEL",
	"DB_DRIVER", "DATABASE_URL", "DB_DEBUG", "MONGO_URI", "MONGO_DATABASE",
	"JWT_SECRET", "TOKEN_TTL",
	"IDENTITY_PROVIDER", "COGNITO_CLIENT_ID", "COGNITO_CLIENT_SECRET", "COGNITO_USER_POOL_ID",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"STRICT_SLOTS", "CLINIC_TIMEZONE", "BOOKING_HORIZON_DAYS", "SLOT_MINUTES", "OPEN_HOUR", "CLOSE_HOUR",
}

// Load reads .env (if present) into the environment and binds every key
// with its default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "6060")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("MONGO_DATABASE", "medibook")
	v.SetDefault("TOKEN_TTL", "1h")
	v.SetDefault("IDENTITY_PROVIDER", ProviderLocal)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("BOOKING_HORIZON_DAYS", 30)
	v.SetDefault("SLOT_MINUTES", 30)
	v.SetDefault("OPEN_HOUR", 9)
	v.SetDefault("CLOSE_HOUR", 17)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when DB_DRIVER=%s", DriverMongo)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver == DriverPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=%s", DriverPostgres)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	switch c.IdentityProvider {
	case ProviderLocal:
	case ProviderCognito:
		if c.CognitoClientID == "" || c.CognitoUserPoolID == "" {
			return fmt.Errorf("COGNITO_CLIENT_ID and COGNITO_USER_POOL_ID are required when IDENTITY_PROVIDER=%s", ProviderCognito)
		}
	default:
		return fmt.Errorf("unsupported IDENTITY_PROVIDER %q", c.IdentityProvider)
	}

	if c.StrictSlots {
		if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
			return fmt.Errorf("invalid CLINIC_TIMEZONE: %w", err)
		}
		if c.OpenHour < 0 || c.CloseHour > 24 || c.OpenHour >= c.CloseHour {
			return fmt.Errorf("OPEN_HOUR must be before CLOSE_HOUR")
		}
		if c.SlotMinutes <= 0 || c.BookingHorizonDays <= 0 {
			return fmt.Errorf("SLOT_MINUTES and BOOKING_HORIZON_DAYS must be positive")
		}
	}
	return nil
}

// Location is the clinic's time zone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
