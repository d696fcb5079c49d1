package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	HIS        HISConfig
	Notifier   NotifierConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// CORSAllowedOrigins lists origins allowed to call the API from a
	// browser (the ward front-end hosts).
	CORSAllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for EventStoreDB, which carries
// the change notifications that drive roster refresh, audit and
// follow-up reminders.
type EventStoreConfig struct {
	// Host is the EventStoreDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
}

// HISConfig holds the connection settings for the legacy hospital
// information system the importer polls. Disabled by default; the
// platform runs standalone without it.
type HISConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// PollIntervalSeconds is how often the importer checks for new
	// admission and discharge rows.
	PollIntervalSeconds int
	// Facility identifies this hospital in the HIS tables.
	Facility string
	// DepartmentMap translates HIS department codes to ward department
	// names; unmapped codes pass through unchanged.
	DepartmentMap map[string]string
}

func (h HISConfig) DSN() string {
	return fmt.Sprintf(
		"sqlserver://%s:%s@%s:%d?database=%s",
		h.User, h.Password, h.Host, h.Port, h.Database,
	)
}

// NotifierConfig tunes the follow-up reminder service.
type NotifierConfig struct {
	Workers           int
	BufferSize        int
	RetryAttempts     int
	RetryDelaySeconds int
	ExpirationMinutes int
	SMSEnabled        bool
	EmailEnabled      bool
	// DeskPhone and DeskEmail reach the ward's follow-up desk, the
	// recipient of discharge reminders.
	DeskPhone         string
	DeskEmail         string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:               getEnvInt("SERVER_PORT", 8080),
			Env:                getEnv("ENV", "development"),
			CORSAllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "imd"),
			Password: getEnv("DB_PASSWORD", "imd"),
			Database: getEnv("DB_NAME", "imd_ward"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			TokenTTLMinutes: getEnvInt("JWT_TTL_MINUTES", 480),
		},
		HIS: HISConfig{
			Enabled:             getEnvBool("HIS_ENABLED", false),
			Host:                getEnv("HIS_DB_HOST", "localhost"),
			Port:                getEnvInt("HIS_DB_PORT", 1433),
			User:                getEnv("HIS_DB_USER", "imd_reader"),
			Password:            getEnv("HIS_DB_PASSWORD", ""),
			Database:            getEnv("HIS_DB_NAME", "HIS"),
			PollIntervalSeconds: getEnvInt("HIS_POLL_INTERVAL_SECONDS", 60),
			Facility:            getEnv("HIS_FACILITY", "IMD"),
			DepartmentMap:       getEnvMap("HIS_DEPARTMENT_MAP"),
		},
		Notifier: NotifierConfig{
			Workers:           getEnvInt("NOTIFY_WORKERS", 3),
			BufferSize:        getEnvInt("NOTIFY_BUFFER_SIZE", 100),
			RetryAttempts:     getEnvInt("NOTIFY_RETRY_ATTEMPTS", 3),
			RetryDelaySeconds: getEnvInt("NOTIFY_RETRY_DELAY_SECONDS", 5),
			ExpirationMinutes: getEnvInt("NOTIFY_EXPIRATION_MINUTES", 1440),
			SMSEnabled:        getEnvBool("NOTIFY_SMS_ENABLED", false),
			EmailEnabled:      getEnvBool("NOTIFY_EMAIL_ENABLED", false),
			DeskPhone:         getEnv("NOTIFY_DESK_PHONE", ""),
			DeskEmail:         getEnv("NOTIFY_DESK_EMAIL", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(getEnvInt("RATE_LIMIT_RPS", 50)),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 100),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvMap parses comma-separated "key=value" pairs; keys are
// uppercased for case-insensitive lookups.
func getEnvMap(key string) map[string]string {
	pairs := getEnvSlice(key, nil)
	if len(pairs) == 0 {
		return nil
	}
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		parts := splitAndTrim(pair, "=")
		if len(parts) == 2 {
			result[toUpper(parts[0])] = parts[1]
		}
	}
	return result
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Parse comma-separated values
		var result []string
		for _, v := range splitAndTrim(value, ",") {
			if v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range splitString(s, sep) {
		trimmed := trimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func splitString(s, sep string) []string {
	if s == "" {
		return nil
	}
	var result []string
	start := 0
	for i := 0; i <= len(s)-len(sep); i++ {
		if s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func toUpper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}
