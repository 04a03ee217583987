package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/52poke/kabuka/internal/cache"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
	BackendMemory   = "memory"
)

type Config struct {
	ListenAddr         string
	LogLevel           string
	LogFormat          string
	CacheBackend       string
	PostgresDSN        string
	RedisAddr          string
	RedisDB            int
	RedisPassword      string
	RedisKeyPrefix     string
	S3Endpoint         string
	S3Region           string
	S3Bucket           string
	S3AccessKey        string
	S3SecretKey        string
	MarketBaseURL      string
	MarketAPIKey       string
	LLMBaseURL         string
	LLMAPIKey          string
	LLMModel           string
	PurgeToken         string
	LocalTier          bool
	LockTTLSeconds     int
	MaxLockWaitSeconds int
	UpstreamTimeout    time.Duration
	NewsLimit          int
	TTLs               map[cache.Category]time.Duration
}

// fileConfig is the optional YAML file named by KABUKA_CONFIG_FILE.
type fileConfig struct {
	TTL map[string]string `yaml:"ttl"`
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:         getenv("KABUKA_LISTEN_ADDR", ":8080"),
		LogLevel:           getenv("KABUKA_LOG_LEVEL", "info"),
		LogFormat:          getenv("KABUKA_LOG_FORMAT", "json"),
		CacheBackend:       strings.ToLower(getenv("KABUKA_CACHE_BACKEND", BackendPostgres)),
		PostgresDSN:        os.Getenv("KABUKA_POSTGRES_DSN"),
		RedisAddr:          getenv("KABUKA_REDIS_ADDR", ""),
		RedisDB:            getenvInt("KABUKA_REDIS_DB", 0),
		RedisPassword:      os.Getenv("KABUKA_REDIS_PASSWORD"),
		RedisKeyPrefix:     getenv("KABUKA_REDIS_KEY_PREFIX", "kabuka:cache:"),
		S3Endpoint:         getenv("KABUKA_S3_ENDPOINT", ""),
		S3Region:           getenv("KABUKA_S3_REGION", ""),
		S3Bucket:           getenv("KABUKA_S3_BUCKET", ""),
		S3AccessKey:        os.Getenv("KABUKA_S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("KABUKA_S3_SECRET_KEY"),
		MarketBaseURL:      getenv("KABUKA_MARKET_BASE_URL", ""),
		MarketAPIKey:       os.Getenv("KABUKA_MARKET_API_KEY"),
		LLMBaseURL:         getenv("KABUKA_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:          os.Getenv("KABUKA_LLM_API_KEY"),
		LLMModel:           getenv("KABUKA_LLM_MODEL", "gpt-4o-mini"),
		PurgeToken:         os.Getenv("KABUKA_PURGE_TOKEN"),
		LocalTier:          getenvBool("KABUKA_LOCAL_TIER", false),
		LockTTLSeconds:     getenvInt("KABUKA_LOCK_TTL_SECONDS", 45),
		MaxLockWaitSeconds: getenvInt("KABUKA_MAX_LOCK_WAIT_SECONDS", 3),
		UpstreamTimeout:    getenvDuration("KABUKA_UPSTREAM_TIMEOUT", 10*time.Second),
		NewsLimit:          getenvInt("KABUKA_NEWS_LIMIT", 10),
		TTLs:               cache.DefaultTTLs(),
	}

	if path := os.Getenv("KABUKA_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	for _, c := range cache.Categories() {
		name := "KABUKA_TTL_" + strings.ToUpper(string(c))
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		ttl, err := cache.ParseTTL(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", name, err)
		}
		cfg.TTLs[c] = ttl
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.MarketBaseURL == "" {
		return errors.New("KABUKA_MARKET_BASE_URL is required")
	}
	switch cfg.CacheBackend {
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("KABUKA_POSTGRES_DSN is required for the postgres backend")
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return errors.New("KABUKA_REDIS_ADDR is required for the redis backend")
		}
	case BackendS3:
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return errors.New("S3 endpoint/bucket/access/secret are required for the s3 backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	return cache.ValidateTTLs(cfg.TTLs)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	for name, v := range fc.TTL {
		c, err := cache.ParseCategory(name)
		if err != nil {
			return fmt.Errorf("config file ttl: %w", err)
		}
		ttl, err := cache.ParseTTL(v)
		if err != nil {
			return fmt.Errorf("config file ttl %s: %w", name, err)
		}
		cfg.TTLs[c] = ttl
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
