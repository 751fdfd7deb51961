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

type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Cart     CartConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Session  SessionConfig
	Log      LogConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

// UpstreamConfig points at the storefront REST API that owns authenticated carts.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CartConfig struct {
	// OperationTimeout bounds every remote cart call made by the engine.
	OperationTimeout time.Duration
	// GuestCartTTL expires persisted guest carts; zero keeps them forever.
	GuestCartTTL time.Duration
	KeyPrefix    string
}

type StorageConfig struct {
	Driver  string // redis, gorm, file, memory
	FileDir string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SessionConfig struct {
	CookieName     string
	IdleTTL        time.Duration
	JanitorSpec    string
	SecureCookie   bool
	CookieLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8081"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Upstream: UpstreamConfig{
			BaseURL: strings.TrimRight(getEnv("STOREFRONT_API_URL", "http://localhost:8080/api"), "/"),
			Timeout: parseDuration(getEnv("STOREFRONT_API_TIMEOUT", "30s"), 30*time.Second),
		},
		Cart: CartConfig{
			OperationTimeout: parseDuration(getEnv("CART_OPERATION_TIMEOUT", "30s"), 30*time.Second),
			GuestCartTTL:     parseDuration(getEnv("GUEST_CART_TTL", "720h"), 720*time.Hour),
			KeyPrefix:        getEnv("GUEST_CART_KEY_PREFIX", "storefront:guest_cart"),
		},
		Storage: StorageConfig{
			Driver:  getEnv("STORAGE_DRIVER", "redis"),
			FileDir: getEnv("STORAGE_FILE_DIR", "./data/guest-carts"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "1234"),
			DBName:   getEnv("DB_NAME", "storefront_cart"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Session: SessionConfig{
			CookieName:     getEnv("SESSION_COOKIE_NAME", "sf_guest"),
			IdleTTL:        parseDuration(getEnv("SESSION_IDLE_TTL", "2h"), 2*time.Hour),
			JanitorSpec:    getEnv("SESSION_JANITOR_SPEC", "@every 5m"),
			SecureCookie:   getEnv("SESSION_SECURE_COOKIE", "false") == "true",
			CookieLifetime: parseDuration(getEnv("SESSION_COOKIE_LIFETIME", "720h"), 720*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", ""),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "redis", "gorm", "file", "memory":
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("STOREFRONT_API_URL is required")
	}
	if c.Cart.OperationTimeout <= 0 {
		return fmt.Errorf("CART_OPERATION_TIMEOUT must be positive")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
