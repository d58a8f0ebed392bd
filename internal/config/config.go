package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	LogLevel   string

	// JWT settings. Secret and TTLs are loaded once at startup and treated
	// as immutable.
	JwtSecret       string
	JwtAlgorithm    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Password KDF cost parameters
	ScryptN int
	ScryptR int
	ScryptP int

	// API key settings
	APIKeyTag string

	// Rate limiting
	RateLimitPerMinute int

	// Admin seed settings (used by cmd/seed)
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, v)
	}
	return d, nil
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	// If DSN is provided directly, use it
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	// Build DSN from individual components
	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable" // Default to disable for local development
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	// Local development keeps settings in a .env file; absence is fine.
	_ = godotenv.Load()

	c := &Config{
		Port:       getenv("PORT", "8080"),
		DBAdapter:  getenv("DB_ADAPTER", "postgres"), // Default to postgres
		SQLiteFile: getenv("SQLITE_FILE", "./data/authgate.db"),
		LogLevel:   getenv("LOG_LEVEL", "info"),

		JwtSecret:    getenv("JWT_SECRET", "change-me"),
		JwtAlgorithm: getenv("JWT_ALGORITHM", "HS256"),

		APIKeyTag: getenv("API_KEY_TAG", "ag"),

		AdminUsername: getenv("ADMIN_USERNAME", "admin"),
		AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getenv("ADMIN_PASSWORD", ""),

		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:     getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:     getenv("POSTGRES_USER", getenv("DB_USER", "authgate")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "authgate")),
		PostgresDB:       getenv("POSTGRES_DB", getenv("DB_NAME", "authgate")),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),
	}

	var err error
	if c.AccessTokenTTL, err = getenvDuration("ACCESS_TOKEN_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.RefreshTokenTTL, err = getenvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if c.ScryptN, err = getenvInt("SCRYPT_N", 1<<14); err != nil {
		return nil, err
	}
	if c.ScryptR, err = getenvInt("SCRYPT_R", 8); err != nil {
		return nil, err
	}
	if c.ScryptP, err = getenvInt("SCRYPT_P", 1); err != nil {
		return nil, err
	}
	if c.RateLimitPerMinute, err = getenvInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}

	// Only HS256 is supported; fail loudly on anything else rather than
	// silently signing with an unexpected scheme.
	if c.JwtAlgorithm != "HS256" {
		return nil, fmt.Errorf("unsupported JWT_ALGORITHM: %s (only HS256 is supported)", c.JwtAlgorithm)
	}

	if c.ScryptN < 2 || c.ScryptN&(c.ScryptN-1) != 0 {
		return nil, fmt.Errorf("SCRYPT_N must be a power of two > 1, got %d", c.ScryptN)
	}

	// Validate PostgreSQL configuration if using postgres
	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" {
		// ensure sqlite file path is not empty
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	}

	// Validate JWT secret in production
	env := strings.ToLower(getenv("ENV", getenv("ENVIRONMENT", "")))
	if env == "production" || env == "prod" {
		if c.JwtSecret == "" || c.JwtSecret == "change-me" {
			return nil, errors.New("JWT_SECRET must be set in production")
		}
	}

	// normalize port
	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
