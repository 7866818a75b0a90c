// Package config provides configuration management for the ClicLoop backend.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Auth         AuthConfig
	AI           AIConfig
	RateLimit    RateLimitConfig
	Terms        TermsConfig
	Environments EnvironmentsConfig
	Logging      LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration.
// The usage ledger is optional; when disabled usage events are only logged.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// AuthConfig holds the settings used to verify the identity provider's session tokens
type AuthConfig struct {
	JWTSecret   string
	JWTAudience string
}

// AIConfig holds language-model settings
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	// provider circuit breaker; 0 failures disables it
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// RateLimitConfig holds the AI proxy quota
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// TermsConfig holds terms-acceptance settings
type TermsConfig struct {
	APIKey       string
	TermsURL     string
	ServerSecret string
	MaxBodyBytes int64
}

// EnvironmentsConfig holds the per-deployment application base URLs
type EnvironmentsConfig struct {
	DevBaseURL  string
	ProdBaseURL string
	ProdHost    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; the environment may be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "clicloop"),
				User:           getEnv("POSTGRES_USER", "clicloop"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "clicloop"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
			JWTAudience: getEnv("AUTH_JWT_AUDIENCE", "authenticated"),
		},
		AI: AIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			Temperature: float32(getEnvAsFloat("AI_TEMPERATURE", 0.8)),
			MaxTokens:   getEnvAsInt("AI_MAX_TOKENS", 1500),
			Timeout:     getEnvAsDuration("AI_TIMEOUT", 60*time.Second),

			BreakerMaxFailures: getEnvAsInt("AI_BREAKER_MAX_FAILURES", 10),
			BreakerTimeout:     getEnvAsDuration("AI_BREAKER_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvAsInt("AI_RATE_LIMIT_REQUESTS", 20),
			Window:   getEnvAsDuration("AI_RATE_LIMIT_WINDOW", 60*time.Second),
		},
		Terms: TermsConfig{
			APIKey:       getEnv("ACCEPT_API_KEY", ""),
			TermsURL:     getEnv("TERMS_URL", ""),
			ServerSecret: getEnv("TERMS_SERVER_SECRET", ""),
			MaxBodyBytes: int64(getEnvAsInt("TERMS_MAX_BODY_BYTES", 10*1024)),
		},
		Environments: EnvironmentsConfig{
			DevBaseURL:  getEnv("APP_DEV_BASE_URL", "http://localhost:8080"),
			ProdBaseURL: getEnv("APP_PROD_BASE_URL", "https://clicloop.com.br"),
			ProdHost:    getEnv("APP_PROD_HOST", "clicloop.com.br"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would make the server misbehave rather than fail loudly.
// Missing secrets are not errors here; the handlers that need them answer 500.
func (c *Config) Validate() error {
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("AI_RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("AI_RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("AI_MAX_TOKENS must be positive, got %d", c.AI.MaxTokens)
	}
	if c.Terms.MaxBodyBytes <= 0 {
		return fmt.Errorf("TERMS_MAX_BODY_BYTES must be positive, got %d", c.Terms.MaxBodyBytes)
	}
	return nil
}

// DSN returns the pgx connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Environment names a deployment target
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// AppURLs are the application links handed to clients for one environment
type AppURLs struct {
	Environment   Environment `json:"environment"`
	Base          string      `json:"base"`
	Login         string      `json:"login"`
	Register      string      `json:"register"`
	Dashboard     string      `json:"dashboard"`
	Onboarding    string      `json:"onboarding"`
	Account       string      `json:"account"`
	PasswordReset string      `json:"passwordReset"`
	Checkout      string      `json:"checkout"`
}

// EnvironmentForHost picks the deployment for a request host.
// Loopback hosts are development; the production host and *.vercel.app previews are
// production; anything else falls back to development.
func (e EnvironmentsConfig) EnvironmentForHost(host string) Environment {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSpace(host))

	switch {
	case host == "localhost" || host == "127.0.0.1":
		return EnvDevelopment
	case e.ProdHost != "" && (host == e.ProdHost || strings.HasSuffix(host, "."+e.ProdHost)):
		return EnvProduction
	case strings.HasSuffix(host, ".vercel.app"):
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// URLsForHost returns the application URLs for the environment serving host
func (e EnvironmentsConfig) URLsForHost(host string) AppURLs {
	env := e.EnvironmentForHost(host)
	base := e.DevBaseURL
	if env == EnvProduction {
		base = e.ProdBaseURL
	}
	base = strings.TrimRight(base, "/")

	return AppURLs{
		Environment:   env,
		Base:          base,
		Login:         base + "/login",
		Register:      base + "/cadastro",
		Dashboard:     base + "/dashboard",
		Onboarding:    base + "/onboarding",
		Account:       base + "/minha-conta",
		PasswordReset: base + "/redefinir-senha",
		Checkout:      base + "/checkout",
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
