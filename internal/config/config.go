package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Booking configuration
	Booking BookingConfig

	// Redis configuration (trip catalog cache)
	Redis RedisConfig

	// Notification configuration (booking confirmation emails)
	Notification NotificationConfig

	// SMS configuration (booking confirmation texts)
	SMS SMSConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" or "memory"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PaymentConfig holds payment gateway configuration
type PaymentConfig struct {
	Mode              string // "simulated" or "http"
	BaseURL           string // Gateway API base URL (http mode)
	APIKey            string
	APISecret         string // SECRET - never expose to client
	ReturnURL         string // Where the gateway redirects the traveller after paying
	Timeout           time.Duration
	ReconcileSchedule string        // cron spec for the pending payment verification job
	ReconcileGrace    time.Duration // minimum age of a pending payment before it is polled
}

// BookingConfig holds booking lifecycle configuration
type BookingConfig struct {
	CodePrefix   string
	CodeAttempts int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string // empty disables the trip cache
	Password string
	DB       int
	TripTTL  time.Duration
}

// NotificationConfig holds email notifier configuration
type NotificationConfig struct {
	Mode    string // "log" or "amqp"
	AMQPURL string
	Queue   string
}

// SMSConfig holds Dialog eSMS configuration
type SMSConfig struct {
	Enabled  bool
	APIURL   string
	Username string
	Password string // SECRET
	Mask     string // Sender ID shown on the handset
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("STORAGE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Payment: PaymentConfig{
			Mode:              getEnv("PAYMENT_MODE", "simulated"),
			BaseURL:           getEnv("PAYMENT_GATEWAY_URL", ""),
			APIKey:            getEnv("PAYMENT_GATEWAY_API_KEY", ""),
			APISecret:         getEnv("PAYMENT_GATEWAY_SECRET", ""),
			ReturnURL:         getEnv("PAYMENT_RETURN_URL", "http://localhost:8080/api/v1/payments/callback"),
			Timeout:           getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 30*time.Second),
			ReconcileSchedule: getEnv("PAYMENT_RECONCILE_SCHEDULE", "@every 1m"),
			ReconcileGrace:    getEnvAsDuration("PAYMENT_RECONCILE_GRACE", 2*time.Minute),
		},
		Booking: BookingConfig{
			CodePrefix:   getEnv("BOOKING_CODE_PREFIX", "BK"),
			CodeAttempts: getEnvAsInt("BOOKING_CODE_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TripTTL:  getEnvAsDuration("REDIS_TRIP_TTL", 5*time.Minute),
		},
		Notification: NotificationConfig{
			Mode:    getEnv("NOTIFICATION_MODE", "log"),
			AMQPURL: getEnv("AMQP_URL", ""),
			Queue:   getEnv("NOTIFICATION_QUEUE", "booking_confirmations"),
		},
		SMS: SMSConfig{
			Enabled:  getEnvAsBool("SMS_ENABLED", false),
			APIURL:   getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			Username: getEnv("DIALOG_SMS_USERNAME", ""),
			Password: getEnv("DIALOG_SMS_PASSWORD", ""),
			Mask:     getEnv("DIALOG_SMS_MASK", "SmartTransit"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage driver: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Payment.Mode {
	case "simulated":
	case "http":
		if c.Payment.BaseURL == "" {
			return fmt.Errorf("PAYMENT_GATEWAY_URL is required for http payment mode")
		}
		if c.Payment.APIKey == "" {
			return fmt.Errorf("PAYMENT_GATEWAY_API_KEY is required for http payment mode")
		}
	default:
		return fmt.Errorf("invalid payment mode: %s (must be 'simulated' or 'http')", c.Payment.Mode)
	}

	if c.Booking.CodeAttempts < 1 {
		return fmt.Errorf("BOOKING_CODE_ATTEMPTS must be at least 1")
	}

	switch c.Notification.Mode {
	case "log":
	case "amqp":
		if c.Notification.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required for amqp notification mode")
		}
	default:
		return fmt.Errorf("invalid notification mode: %s (must be 'log' or 'amqp')", c.Notification.Mode)
	}

	if c.SMS.Enabled && (c.SMS.Username == "" || c.SMS.Password == "") {
		return fmt.Errorf("DIALOG_SMS_USERNAME and DIALOG_SMS_PASSWORD are required when SMS_ENABLED is true")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
