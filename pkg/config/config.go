package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// BillingConfig holds the billing gateway settings. The webhook token is the
// shared secret the gateway sends back in the X-Billing-Access-Token header.
type BillingConfig struct {
	BaseURL      string
	APIKey       string
	WebhookToken string
}

// TrialConfig holds trial lifecycle settings
type TrialConfig struct {
	DurationDays int
}

// PlanConfig holds the per-unit-quantity resource allowances of each plan
// type. Custom plans are provisioned manually and carry no allowances here.
type PlanConfig struct {
	StarterNativeInstances   int
	StarterExternalInstances int
	StarterInternalAgents    int
	StarterExternalAgents    int
	ProNativeInstances       int
	ProExternalInstances     int
	ProInternalAgents        int
	ProExternalAgents        int
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Billing     BillingConfig
	Trial       TrialConfig
	Plan        PlanConfig
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", serviceName),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Info),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", serviceName),
		},
		Billing: BillingConfig{
			BaseURL:      getEnv("BILLING_API_URL", "https://sandbox.asaas.com/api/v3"),
			APIKey:       getEnv("BILLING_API_KEY", ""),
			WebhookToken: getEnv("BILLING_WEBHOOK_TOKEN", ""),
		},
		Trial: TrialConfig{
			DurationDays: getEnvAsInt("TRIAL_DURATION_DAYS", 7),
		},
		Plan: PlanConfig{
			StarterNativeInstances:   getEnvAsInt("PLAN_STARTER_NATIVE_INSTANCES", 2),
			StarterExternalInstances: getEnvAsInt("PLAN_STARTER_EXTERNAL_INSTANCES", 2),
			StarterInternalAgents:    getEnvAsInt("PLAN_STARTER_INTERNAL_AGENTS", 1),
			StarterExternalAgents:    getEnvAsInt("PLAN_STARTER_EXTERNAL_AGENTS", 1),
			ProNativeInstances:       getEnvAsInt("PLAN_PRO_NATIVE_INSTANCES", 5),
			ProExternalInstances:     getEnvAsInt("PLAN_PRO_EXTERNAL_INSTANCES", 5),
			ProInternalAgents:        getEnvAsInt("PLAN_PRO_INTERNAL_AGENTS", 3),
			ProExternalAgents:        getEnvAsInt("PLAN_PRO_EXTERNAL_AGENTS", 3),
		},
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("billing_api_url", c.Billing.BaseURL),
		zap.Int("trial_duration_days", c.Trial.DurationDays),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
