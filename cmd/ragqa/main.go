package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragqa/internal/cache"
	"ragqa/internal/config"
	"ragqa/internal/lifecycle"
	"ragqa/internal/logger"
	"ragqa/internal/prompt"
	"ragqa/internal/server"
	"ragqa/internal/service"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/ragqa/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Production: cfg.Logging.Environment == "production",
	})
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Error("server stopped with error", zap.String("config", cfgPath), zap.Error(err))
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Info("starting Nepali RAG system", zap.String("policy", cfg.Lifecycle.Policy), zap.String("addr", cfg.Addr()))

	mgr, err := lifecycle.NewManager(cfg.Lifecycle.Policy, lifecycle.LoadersFromConfig(cfg, lg.Named("lifecycle")), lg.Named("lifecycle"))
	if err != nil {
		return err
	}
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	c, closeCache, err := newCache(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeCache()

	svc := service.NewRAGService(mgr, service.Options{
		DefaultTopK:       cfg.Retrieval.DefaultTopK,
		MaxTopK:           cfg.Retrieval.MaxTopK,
		MaxContextChars:   cfg.Retrieval.MaxContextChars,
		RetrievalTimeout:  cfg.RetrievalTimeout(),
		GenerationTimeout: cfg.GeneratorTimeout(),
		Prompt:            prompt.NewBuilder(cfg.Prompt.Language, cfg.Prompt.FallbackPhrase),
		Cache:             c,
		Logger:            lg.Named("rag"),
	})

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := server.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		opts.RateLimiter = server.NewRateLimiter(ctx, rl.RequestsPerMinute, rl.Burst)
	}
	router := server.NewRouter(server.NewHandler(svc, mgr, lg.Named("http")), opts, lg.Named("http"))

	return server.New(cfg.Addr(), router, cfg.ShutdownTimeout(), lg).Run(ctx)
}

func newCache(ctx context.Context, cfg *config.AppConfig, lg *zap.Logger) (cache.Cache, func(), error) {
	switch cfg.Cache.Type {
	case "none", "":
		return cache.Nop{}, func() {}, nil
	case "memory":
		c, err := cache.NewLRU(cfg.Cache.Size, cfg.CacheTTL())
		if err != nil {
			return nil, nil, fmt.Errorf("memory cache: %w", err)
		}
		return c, func() {}, nil
	case "redis":
		c, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.CacheTTL(), lg.Named("cache"))
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache type: %s", cfg.Cache.Type)
	}
}
