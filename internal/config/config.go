package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration
type Config struct {
	Server      ServerConfig
	Upstream    UpstreamConfig
	Profile     ProfileConfig
	Redis       RedisConfig
	Permissions PermissionsConfig
	Log         LogConfig
	OTEL        OTELConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// UpstreamConfig holds the platform API connection configuration
type UpstreamConfig struct {
	BaseURL    string
	SignInPath string
	Timeout    time.Duration
}

// ProfileConfig locates the local profile holding the credential pair
type ProfileConfig struct {
	Dir string

	// StoreBackend selects the credential store: "file" or "redis".
	StoreBackend string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	Enabled  bool
}

// PermissionsConfig tunes the permission matrix cache
type PermissionsConfig struct {
	CacheTTL time.Duration
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	InstanceID     string
	Token          string
	Enabled        bool
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8090"),
		},
		Upstream: UpstreamConfig{
			BaseURL:    getEnv("UPSTREAM_BASE_URL", ""),
			SignInPath: getEnv("SIGN_IN_PATH", "/sign-in"),
			Timeout:    time.Duration(getEnvAsInt64("UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Profile: ProfileConfig{
			Dir:          getEnv("PROFILE_DIR", defaultProfileDir()),
			StoreBackend: getEnv("CREDENTIAL_STORE", "file"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		Permissions: PermissionsConfig{
			CacheTTL: time.Duration(getEnvAsInt64("PERMISSION_CACHE_TTL_MINUTES", 15)) * time.Minute,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "console-gateway"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}
	if c.Profile.StoreBackend != "file" && c.Profile.StoreBackend != "redis" {
		return fmt.Errorf("CREDENTIAL_STORE must be \"file\" or \"redis\", got %q", c.Profile.StoreBackend)
	}
	if c.Profile.StoreBackend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("CREDENTIAL_STORE=redis requires REDIS_ENABLED=true")
	}
	return nil
}

func defaultProfileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agriview"
	}
	return home + "/.agriview"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
