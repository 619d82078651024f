package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBTimeout      time.Duration `mapstructure:"DB_TIMEOUT"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTIssuer      string        `mapstructure:"JWT_ISSUER"`
	TokenTTL       time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitIdle  time.Duration `mapstructure:"RATE_LIMIT_IDLE_TTL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	DemoFallback   bool          `mapstructure:"DEMO_FALLBACK"`
	ClinicOpen     string        `mapstructure:"CLINIC_OPEN"`
	ClinicClose    string        `mapstructure:"CLINIC_CLOSE"`
	SlotMinutes    int           `mapstructure:"SLOT_MINUTES"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_TIMEOUT",
	"REDIS_URL", "JWT_SECRET", "JWT_ISSUER", "TOKEN_TTL", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_IDLE_TTL",
	"REQUEST_TIMEOUT", "DEMO_FALLBACK",
	"CLINIC_OPEN", "CLINIC_CLOSE", "SLOT_MINUTES",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_TIMEOUT", "5s")
	v.SetDefault("JWT_ISSUER", "medcare")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("RATE_LIMIT_IDLE_TTL", "10m")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("DEMO_FALLBACK", false)
	v.SetDefault("CLINIC_OPEN", "09:00")
	v.SetDefault("CLINIC_CLOSE", "17:00")
	v.SetDefault("SLOT_MINUTES", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
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

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret of at least 32 bytes is required. A database is required unless
// the in-memory demo fallback is enabled.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && !c.DemoFallback {
		return fmt.Errorf("DATABASE_URL is required unless DEMO_FALLBACK is enabled")
	}
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}

	open, err := time.Parse("15:04", c.ClinicOpen)
	if err != nil {
		return fmt.Errorf("CLINIC_OPEN is not HH:MM: %w", err)
	}
	closing, err := time.Parse("15:04", c.ClinicClose)
	if err != nil {
		return fmt.Errorf("CLINIC_CLOSE is not HH:MM: %w", err)
	}
	if !closing.After(open) {
		return fmt.Errorf("CLINIC_CLOSE (%s) must be after CLINIC_OPEN (%s)", c.ClinicClose, c.ClinicOpen)
	}
	if c.SlotMinutes < 5 || c.SlotMinutes > 240 {
		return fmt.Errorf("SLOT_MINUTES must be between 5 and 240, got %d", c.SlotMinutes)
	}
	return nil
}
