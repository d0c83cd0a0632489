package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Remote backend names accepted by REMOTE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
)

// Config holds application configuration
type Config struct {
	Env     string
	LogFile string

	// Local store
	LocalDBPath string

	// Remote store
	RemoteBackend string
	RemoteURL     string
	RemoteToken   string
	RemoteTimeout time.Duration

	// Owner is the default identity of the CLI.
	Owner string

	// Remote database (postgres backend and gateway)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Gateway
	Port string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Connectivity
	ProbeInterval time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:     getEnv("ENV", "development"),
		LogFile: getEnv("LOG_FILE", ""),

		LocalDBPath: getEnv("LOCAL_DB_PATH", "ledgersync.db"),

		RemoteBackend: strings.ToLower(getEnv("REMOTE_BACKEND", BackendMemory)),
		RemoteURL:     getEnv("REMOTE_URL", "http://localhost:8080"),
		RemoteToken:   getEnv("REMOTE_TOKEN", ""),

		Owner: getEnv("LEDGER_OWNER", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "ledgersync"),
		DBPassword: getEnv("DB_PASSWORD", "ledgersync"),
		DBName:     getEnv("DB_NAME", "ledgersync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		Port: getEnv("PORT", "8080"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
	}

	switch config.RemoteBackend {
	case BackendMemory, BackendPostgres, BackendHTTP:
	default:
		return nil, fmt.Errorf("invalid REMOTE_BACKEND %q: must be memory, postgres, or http", config.RemoteBackend)
	}

	config.JWTExpirationDur = durationEnv("JWT_EXPIRES_IN", 24*time.Hour)
	config.ProbeInterval = durationEnv("CONNECTIVITY_PROBE_INTERVAL", 15*time.Second)

	timeout, err := parseTimeout(os.Getenv("REMOTE_TIMEOUT"))
	if err != nil {
		return nil, err
	}
	config.RemoteTimeout = timeout

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// PostgresDSN returns the key/value DSN used by gorm and pgx.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// PostgresURL returns the URL form required by golang-migrate.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, s, def)
		return def
	}
	return d
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid REMOTE_TIMEOUT %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("REMOTE_TIMEOUT must be positive, got %v", d)
	}
	return d, nil
}
