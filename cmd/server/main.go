package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/config"
	"github.com/runledger/internal/db"
	"github.com/runledger/internal/router"
	"github.com/runledger/internal/service"
)

func main() {
	// .env 只在本地开发时存在
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] failed to load .env: %v", err)
	}
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	gdb, err := db.Open(db.Options{
		Driver:   cfg.DatabaseDriver,
		Path:     cfg.DatabasePath,
		DSN:      cfg.DatabaseDSN,
		LogLevel: cfg.DBLogLevel,
	})
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	store, err := newStatsCache(cfg)
	if err != nil {
		log.Fatalf("failed to initialize stats cache: %v", err)
	}

	// 设置并运行 Gin 服务器
	engine := service.NewEngine(gdb, store)
	r := router.SetupRouter(engine, router.Options{AllowedOrigins: cfg.CORSAllowedOrigins})

	log.Printf("[server] listening on %s (driver=%s)", cfg.ListenAddr, cfg.DatabaseDriver)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

// newStatsCache 按配置选择缓存：TTL 为 0 时关闭，配置了 Redis 地址时使用 Redis，否则使用进程内缓存。
func newStatsCache(cfg config.AppConfig) (cache.Store, error) {
	if !cfg.CacheEnabled() {
		log.Printf("[cache] stats cache disabled")
		return cache.Disabled{}, nil
	}

	if cfg.RedisAddr == "" {
		log.Printf("[cache] using in-memory stats cache (ttl=%s)", cfg.StatsCacheTTL)
		return cache.NewMemory(cfg.StatsCacheTTL), nil
	}

	client, err := cache.Connect(cache.RedisOptions{
		Address:  cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[cache] using redis stats cache at %s (ttl=%s)", cfg.RedisAddr, cfg.StatsCacheTTL)
	return cache.NewRedis(client, cfg.StatsCacheTTL), nil
}
