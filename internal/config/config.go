package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// FUDI server
	ListenAddress       string        `env:"FCPD_LISTEN_ADDRESS" default:"localhost"`
	ListenPort          int           `env:"FCPD_LISTEN_PORT" default:"8888"`
	PollInterval        time.Duration `env:"FCPD_POLL_INTERVAL" default:"50ms"`
	CallbackDialTimeout time.Duration `env:"FCPD_CALLBACK_DIAL_TIMEOUT" default:"1s"`
	MessageRate         float64       `env:"FCPD_MESSAGE_RATE" default:"0"`
	MessageBurst        int           `env:"FCPD_MESSAGE_BURST" default:"20"`
	AllowRaw            bool          `env:"FCPD_ALLOW_RAW" default:"false"`

	// Authentication, empty disables it
	AuthSecret string `env:"FCPD_AUTH_SECRET"`

	// Operator API, 0 disables it
	HTTPPort int `env:"FCPD_HTTP_PORT" default:"0"`

	// Document and persistence
	Document string `env:"FCPD_DOCUMENT" default:"Unnamed"`
	Store    string `env:"FCPD_STORE" default:"memory"`

	// Redis Cache
	RedisURL      string `env:"REDIS_URL" default:"redis://localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" default:"0"`

	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Development
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// ConfigFile is the TOML overlay that was applied, if any
	ConfigFile string `env:"FCPD_CONFIG_FILE"`
}

// Store back-ends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreHybrid   = "hybrid"
)

// LoadConfig loads configuration from environment variables, then applies
// the TOML file named by FCPD_CONFIG_FILE when there is one
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit overlay file. An empty
// path falls back to FCPD_CONFIG_FILE.
func LoadConfigFile(path string) (*Config, error) {
	// .env is optional, system env vars work without it
	_ = godotenv.Load(".env")

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// FUDI server
	if err := loadEnvString(&config.ListenAddress, "FCPD_LISTEN_ADDRESS", "localhost"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.ListenPort, "FCPD_LISTEN_PORT", 8888); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.PollInterval, "FCPD_POLL_INTERVAL", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.CallbackDialTimeout, "FCPD_CALLBACK_DIAL_TIMEOUT", time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.MessageRate, "FCPD_MESSAGE_RATE", 0); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MessageBurst, "FCPD_MESSAGE_BURST", 20); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.AllowRaw, "FCPD_ALLOW_RAW", false); err != nil {
		return nil, err
	}

	// Authentication
	if err := loadEnvString(&config.AuthSecret, "FCPD_AUTH_SECRET", ""); err != nil {
		return nil, err
	}

	// Operator API
	if err := loadEnvInt(&config.HTTPPort, "FCPD_HTTP_PORT", 0); err != nil {
		return nil, err
	}

	// Document
	if err := loadEnvString(&config.Document, "FCPD_DOCUMENT", "Unnamed"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.Store, "FCPD_STORE", StoreMemory); err != nil {
		return nil, err
	}

	// Redis
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", "redis://localhost:6379"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.CacheTTL, "CACHE_TTL", 0); err != nil {
		return nil, err
	}

	// Database
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", ""); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv("FCPD_CONFIG_FILE")
	}
	if path != "" {
		if err := config.applyFile(path); err != nil {
			return nil, err
		}
		config.ConfigFile = path
	}
	return config, nil
}

// fileConfig mirrors Config for the TOML overlay. Durations are strings.
type fileConfig struct {
	ListenAddress       string  `toml:"listen_address"`
	ListenPort          int     `toml:"listen_port"`
	PollInterval        string  `toml:"poll_interval"`
	CallbackDialTimeout string  `toml:"callback_dial_timeout"`
	MessageRate         float64 `toml:"message_rate"`
	MessageBurst        int     `toml:"message_burst"`
	AllowRaw            bool    `toml:"allow_raw"`
	AuthSecret          string  `toml:"auth_secret"`
	HTTPPort            int     `toml:"http_port"`
	Document            string  `toml:"document"`
	Store               string  `toml:"store"`
	RedisURL            string  `toml:"redis_url"`
	RedisPassword       string  `toml:"redis_password"`
	CacheTTL            int     `toml:"cache_ttl"`
	DatabaseURL         string  `toml:"database_url"`
	LogLevel            string  `toml:"log_level"`
	LogFormat           string  `toml:"log_format"`
}

// applyFile overrides the keys the file defines
func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("listen_address") {
		c.ListenAddress = strings.TrimSpace(raw.ListenAddress)
	}
	if meta.IsDefined("listen_port") {
		c.ListenPort = raw.ListenPort
	}
	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if meta.IsDefined("callback_dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CallbackDialTimeout))
		if err != nil {
			return fmt.Errorf("parse callback_dial_timeout: %w", err)
		}
		c.CallbackDialTimeout = d
	}
	if meta.IsDefined("message_rate") {
		c.MessageRate = raw.MessageRate
	}
	if meta.IsDefined("message_burst") {
		c.MessageBurst = raw.MessageBurst
	}
	if meta.IsDefined("allow_raw") {
		c.AllowRaw = raw.AllowRaw
	}
	if meta.IsDefined("auth_secret") {
		c.AuthSecret = raw.AuthSecret
	}
	if meta.IsDefined("http_port") {
		c.HTTPPort = raw.HTTPPort
	}
	if meta.IsDefined("document") {
		c.Document = strings.TrimSpace(raw.Document)
	}
	if meta.IsDefined("store") {
		c.Store = strings.TrimSpace(raw.Store)
	}
	if meta.IsDefined("redis_url") {
		c.RedisURL = strings.TrimSpace(raw.RedisURL)
	}
	if meta.IsDefined("redis_password") {
		c.RedisPassword = raw.RedisPassword
	}
	if meta.IsDefined("cache_ttl") {
		c.CacheTTL = raw.CacheTTL
	}
	if meta.IsDefined("database_url") {
		c.DatabaseURL = strings.TrimSpace(raw.DatabaseURL)
	}
	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		c.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	return nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	// 0 asks the system for a free port
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		errors = append(errors, "FCPD_LISTEN_PORT must be between 0 and 65535")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errors = append(errors, "FCPD_HTTP_PORT must be between 0 and 65535")
	}
	if c.HTTPPort != 0 && c.HTTPPort == c.ListenPort {
		errors = append(errors, "FCPD_HTTP_PORT must differ from FCPD_LISTEN_PORT")
	}
	if c.PollInterval <= 0 {
		errors = append(errors, "FCPD_POLL_INTERVAL must be positive")
	}
	if c.CallbackDialTimeout <= 0 {
		errors = append(errors, "FCPD_CALLBACK_DIAL_TIMEOUT must be positive")
	}
	if c.MessageRate < 0 {
		errors = append(errors, "FCPD_MESSAGE_RATE must not be negative")
	}
	if c.MessageBurst < 1 {
		errors = append(errors, "FCPD_MESSAGE_BURST must be at least 1")
	}
	if strings.TrimSpace(c.Document) == "" {
		errors = append(errors, "FCPD_DOCUMENT must not be empty")
	}

	// Validate store and what it needs
	validStores := []string{StoreMemory, StoreRedis, StorePostgres, StoreHybrid}
	if !contains(validStores, c.Store) {
		errors = append(errors, fmt.Sprintf("FCPD_STORE must be one of: %s", strings.Join(validStores, ", ")))
	}
	if (c.Store == StoreRedis || c.Store == StoreHybrid) && c.RedisURL == "" {
		errors = append(errors, "REDIS_URL is required for the "+c.Store+" store")
	}
	if (c.Store == StorePostgres || c.Store == StoreHybrid) && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required for the "+c.Store+" store")
	}
	if c.CacheTTL < 0 {
		errors = append(errors, "CACHE_TTL must not be negative")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	// Validate log format
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	// Validate auth secret length (should be at least 32 characters for security)
	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		errors = append(errors, "FCPD_AUTH_SECRET should be at least 32 characters long")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// CacheExpiry is CACHE_TTL as a duration, 0 keeps entries forever
func (c *Config) CacheExpiry() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
