package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Auth modes. Dev mode injects a default identity for every request; jwt
// mode verifies bearer tokens against a shared secret or a JWKS endpoint.
const (
	AuthModeDev = "dev"
	AuthModeJWT = "jwt"
)

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	LogLevel              string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	CORSAllowedOrigins    []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	AuthMode              string   `mapstructure:"AUTH_MODE"`
	JWTSecret             string   `mapstructure:"JWT_SECRET"`
	JWTIssuer             string   `mapstructure:"JWT_ISSUER"`
	JWTAudience           string   `mapstructure:"JWT_AUDIENCE"`
	JWTJWKSURL            string   `mapstructure:"JWT_JWKS_URL"`
	RateLimitPerMin       int      `mapstructure:"RATE_LIMIT_PER_MIN"`
	BodyLimit             string   `mapstructure:"BODY_LIMIT"`
	RequestTimeoutSeconds int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	UIEnabled             bool     `mapstructure:"UI_ENABLED"`
	BaseURL               string   `mapstructure:"BASE_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("AUTH_MODE", AuthModeDev)
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("UI_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ALLOWED_ORIGINS")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("JWT_AUDIENCE")
	v.BindEnv("JWT_JWKS_URL")
	v.BindEnv("RATE_LIMIT_PER_MIN")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("UI_ENABLED")
	v.BindEnv("BASE_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSAllowedOrigins == nil {
		origins := v.GetString("CORS_ALLOWED_ORIGINS")
		if origins != "" {
			cfg.CORSAllowedOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}

	if cfg.AuthMode == AuthModeDev {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running with AUTH_MODE=dev.")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set AUTH_MODE=jwt and configure JWT_SECRET or JWT_JWKS_URL.")
		log.Println("WARNING: ============================================================")
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

// HistoryEnabled reports whether assessment persistence is configured.
// Without a DATABASE_URL the server still calculates risk but refuses
// history operations.
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run. In jwt mode a
// verification key source is required: a shared secret, a JWKS endpoint,
// or an issuer whose JWKS can be discovered.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeDev:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=dev is not allowed when ENV is \"production\"")
		}
	case AuthModeJWT:
		if c.JWTSecret == "" && c.JWTJWKSURL == "" && c.JWTIssuer == "" {
			return fmt.Errorf(
				"JWT_SECRET, JWT_JWKS_URL, or JWT_ISSUER must be set when AUTH_MODE is \"jwt\". " +
					"Refusing to start without a token verification key source")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"dev\" or \"jwt\", got %q", c.AuthMode)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive, got %d", c.RateLimitPerMin)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSeconds)
	}

	return nil
}
