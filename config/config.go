package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
)

// Config holds all configuration for the screening service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port           string
	TrustedProxies []string
	AllowedOrigins []string

	// Logging
	LogLevel  string
	LogFormat string

	// Auth
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CookieSecure    bool
	CookieDomain    string

	// Seed admin, inserted on startup when absent
	AdminSeedEmail    string
	AdminSeedPassword string
	AdminSeedName     string

	// Object storage
	AWSRegion      string
	AWSEndpointURL string
	S3Bucket       string
	AdminURLTTL    time.Duration
	PublicURLTTL   time.Duration
	MaxUploadBytes int64

	// Facial analysis API
	AnalysisAPIURL     string
	AnalysisAPIKey     string
	AnalysisTimeout    time.Duration
	AnalysisRatePerSec float64

	// Submission queries
	UseChurchDateIndex bool
	ExportLimit        int

	// Rate limiting
	RedisURL               string
	RateLimitSweepInterval time.Duration

	// Events
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Notifications
	SMSEnabled          bool
	SMSSenderID         string
	SendConfirmationSMS bool
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string

	// Public form base URL, encoded into location QR codes
	PublicFormURL string
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "screening"),

		Port:           getEnv("PORT", "8080"),
		TrustedProxies: getListEnv("TRUSTED_PROXIES"),
		AllowedOrigins: getListEnv("ALLOWED_ORIGINS"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 4*time.Hour),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		CookieSecure:    getBoolEnv("COOKIE_SECURE", true),
		CookieDomain:    getEnv("COOKIE_DOMAIN", ""),

		AdminSeedEmail:    getEnv("ADMIN_SEED_EMAIL", ""),
		AdminSeedPassword: getEnv("ADMIN_SEED_PASSWORD", ""),
		AdminSeedName:     getEnv("ADMIN_SEED_NAME", "Administrator"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		S3Bucket:       getEnv("S3_BUCKET", "health-screening-photos"),
		AdminURLTTL:    getDurationEnv("ADMIN_URL_TTL", time.Hour),
		PublicURLTTL:   getDurationEnv("PUBLIC_URL_TTL", 2*time.Hour),
		MaxUploadBytes: getInt64Env("MAX_UPLOAD_BYTES", 5*1024*1024),

		AnalysisAPIURL:     getEnv("ANALYSIS_API_URL", ""),
		AnalysisAPIKey:     getEnv("ANALYSIS_API_KEY", ""),
		AnalysisTimeout:    getDurationEnv("ANALYSIS_TIMEOUT", 30*time.Second),
		AnalysisRatePerSec: getFloatEnv("ANALYSIS_RATE_PER_SEC", 5),

		UseChurchDateIndex: getBoolEnv("USE_CHURCH_DATE_INDEX", true),
		ExportLimit:        getIntEnv("EXPORT_LIMIT", 10000),

		RedisURL:               getEnv("REDIS_URL", ""),
		RateLimitSweepInterval: getDurationEnv("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "screening"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "submission.created"),

		SMSEnabled:          getBoolEnv("SMS_ENABLED", false),
		SMSSenderID:         getEnv("SMS_SENDER_ID", ""),
		SendConfirmationSMS: getBoolEnv("SEND_CONFIRMATION_SMS", false),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Health Screening"),

		PublicFormURL: getEnv("PUBLIC_FORM_URL", "http://localhost:3000/screening"),
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		key := make([]byte, 32)
		rand.Read(key)
		cfg.JWTSecret = hex.EncodeToString(key)
		log.Warn("Generated temporary JWT secret. Set JWT_SECRET so sessions survive restarts.")
	}

	return cfg
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated variable, dropping empty entries
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
