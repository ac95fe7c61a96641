package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port              string
	APIKey            string
	SQLitePath        string
	OpenSearchURL     string
	OpenSearchUser    string
	OpenSearchPass    string
	EnableLogging     bool
	LoggingLevel      string
	KafkaBrokers      []string
	KafkaPaymentTopic string
	ReconcileInterval time.Duration
	ReconcileBatch    int
	AllowedIPs        []string
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validator.New(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:              GetEnv("APP_PORT", "9999"),
			APIKey:            GetEnv("API_KEY", ""),
			SQLitePath:        GetEnv("SQLITE_PATH", "./data/paygate.db"),
			OpenSearchURL:     GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:    GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:    GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:     GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:      GetEnv("LOGGING_LEVEL", "info"),
			KafkaBrokers:      GetListEnv("KAFKA_BROKERS"),
			KafkaPaymentTopic: GetEnv("KAFKA_PAYMENT_TOPIC", "payments.phonepe"),
			ReconcileInterval: GetDurationEnv("RECONCILE_INTERVAL", 0),
			ReconcileBatch:    GetIntEnv("RECONCILE_BATCH", 50),
			AllowedIPs:        GetListEnv("IP_WHITELIST"),
		}
	}
	return appConfigInstance
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv accepts Go duration strings ("90s") or plain seconds ("90").
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return ParseDuration(value, defaultValue)
}

// GetListEnv splits a comma separated variable, dropping blanks.
func GetListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseDuration parses "30s"-style durations and bare second counts.
func ParseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
