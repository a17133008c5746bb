package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Port                    string `yaml:"port"`
	AllowedOrigin           string `yaml:"allowed_origin"`
	StorageBackend          string `yaml:"storage_backend"`
	DataDir                 string `yaml:"data_dir"`
	DatabaseURL             string `yaml:"database_url"`
	RedisAddr               string `yaml:"redis_addr"`
	RedisPassword           string `yaml:"redis_password"`
	RedisDB                 int    `yaml:"redis_db"`
	MongoURI                string `yaml:"mongodb_uri"`
	MongoDatabase           string `yaml:"mongodb_database"`
	ReminderIntervalSeconds int    `yaml:"reminder_interval_seconds"`
	LowStockThreshold       int    `yaml:"low_stock_threshold"`
	PersistRetrySeconds     int    `yaml:"persist_retry_seconds"`
	LogLevel                string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		Port:                    "8080",
		AllowedOrigin:           "http://127.0.0.1:3000",
		StorageBackend:          BackendFile,
		DataDir:                 "data",
		MongoDatabase:           "draqua",
		ReminderIntervalSeconds: 60,
		LowStockThreshold:       10,
		PersistRetrySeconds:     10,
		LogLevel:                "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.StorageBackend))
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.MongoURI = getEnv("MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.MongoDatabase)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, err
	}
	if cfg.ReminderIntervalSeconds, err = getEnvInt("REMINDER_INTERVAL_SECONDS", cfg.ReminderIntervalSeconds); err != nil {
		return Config{}, err
	}
	if cfg.LowStockThreshold, err = getEnvInt("LOW_STOCK_THRESHOLD", cfg.LowStockThreshold); err != nil {
		return Config{}, err
	}
	if cfg.PersistRetrySeconds, err = getEnvInt("PERSIST_RETRY_SECONDS", cfg.PersistRetrySeconds); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %q is not a valid port", c.Port))
	}
	if origin := c.AllowedOrigin; origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		problems = append(problems, fmt.Sprintf("ALLOWED_ORIGIN %q must be * or an http(s) origin", origin))
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.DataDir) == "" {
			problems = append(problems, "DATA_DIR is required for the file backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres backend")
		}
	case BackendMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			problems = append(problems, "MONGODB_URI and MONGODB_DATABASE are required for the mongo backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_BACKEND %q is not one of file, memory, redis, postgres, mongo", c.StorageBackend))
	}

	if c.ReminderIntervalSeconds < 1 {
		problems = append(problems, "REMINDER_INTERVAL_SECONDS must be at least 1")
	}
	if c.LowStockThreshold < 1 {
		problems = append(problems, "LOW_STOCK_THRESHOLD must be at least 1")
	}
	if c.PersistRetrySeconds < 1 {
		problems = append(problems, "PERSIST_RETRY_SECONDS must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalSeconds) * time.Second
}

func (c Config) PersistRetryInterval() time.Duration {
	return time.Duration(c.PersistRetrySeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return val, nil
}
