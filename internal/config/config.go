package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	DefaultStoreName       string
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string
	ReturnWindowDays       int
	AllowNegativeStock     bool
	CatalogCacheTTLSeconds int
	CommitLatchTTLSeconds  int
	LogLevel               string
	MigrateOnStart         bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		DefaultStoreName:       getEnv("DEFAULT_STORE_NAME", "Matriz"),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:             strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		ReturnWindowDays:       nonNegativeInt("RETURN_WINDOW_DAYS", 7),
		AllowNegativeStock:     getBool("ALLOW_NEGATIVE_STOCK", false),
		CatalogCacheTTLSeconds: positiveInt("CATALOG_CACHE_TTL_SECONDS", 30),
		CommitLatchTTLSeconds:  positiveInt("COMMIT_LATCH_TTL_SECONDS", 30),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		MigrateOnStart:         getBool("MIGRATE_ON_START", false),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLSeconds) * time.Second
}

func (c Config) CommitLatchTTL() time.Duration {
	return time.Duration(c.CommitLatchTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func nonNegativeInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}
