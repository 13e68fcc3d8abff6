package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultStatsCacheTTL = 10 * time.Minute

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr         string
	Port               string
	GinMode            string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	DBLogLevel         string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	StatsCacheTTL      time.Duration
	CORSAllowedOrigins []string
}

// CacheEnabled 在 TTL 为 0 时关闭统计缓存。
func (c AppConfig) CacheEnabled() bool {
	return c.StatsCacheTTL > 0
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := envOrDefault("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	return AppConfig{
		ListenAddr:         listenAddr,
		Port:               port,
		GinMode:            envOrDefault("GIN_MODE", "release"),
		DatabaseDriver:     strings.ToLower(envOrDefault("DATABASE_DRIVER", "sqlite")),
		DatabasePath:       envOrDefault("DATABASE_PATH", "runledger.db"),
		DatabaseDSN:        strings.TrimSpace(os.Getenv("DATABASE_DSN")),
		DBLogLevel:         strings.ToLower(envOrDefault("DB_LOG_LEVEL", "warn")),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		StatsCacheTTL:      envDuration("STATS_CACHE_TTL", defaultStatsCacheTTL),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return value
}

// envDuration 接受 Go duration 写法（10m、90s），纯数字按秒处理，0 表示关闭。
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	if value < 0 {
		return 0
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
