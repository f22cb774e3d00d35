package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"smokhtari/torobworker/config"
	"smokhtari/torobworker/internal/ratelimit"
	"smokhtari/torobworker/internal/scrape"
	"smokhtari/torobworker/internal/server"
	"smokhtari/torobworker/internal/store"
	"smokhtari/torobworker/logger"
	"smokhtari/torobworker/services/cache"
	"smokhtari/torobworker/services/worker"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("store_backend", cfg.StoreBackend).
		Str("cache_backend", cfg.CacheBackend).
		Bool("enabled", cfg.Enabled).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize stores and services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	metrics := scrape.NewMetrics()
	fetcher := scrape.NewFetcher(cfg.TorobBaseURL, cfg.FetchTimeout)
	gate := ratelimit.NewGate(cfg.RateLimitInterval)
	detector := ratelimit.NewBurstDetector(services.Logs, services.Flags, cfg.BurstWindow, cfg.BurstThreshold, cfg.BlockTime)

	scraper := scrape.New(cfg, fetcher, services.Cache, services.Logs, gate, detector, metrics)

	// Maintenance worker: expired cache sweep and search log pruning
	w := worker.NewWorker(services.Cache, services.Logs, cfg.MaintenanceInterval, time.Duration(cfg.LogRetentionDays)*24*time.Hour)
	go w.Start(ctx)

	// HTTP server
	srv := server.NewServer(scraper, services.Cache, services.Logs, metrics)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(ctx, cfg.ListenAddr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-serverDone
	case err := <-serverDone:
		if err != nil {
			log.Error().Err(err).Msg("Server exited with error")
		} else {
			log.Info().Msg("Server exited normally")
		}
	}

	log.Info().Msg("Shutting down gracefully...")
}

// Services holds the initialized stores and caches
type Services struct {
	Cache store.CacheStore
	Logs  store.SearchLogStore
	Flags cache.CacheService

	redisStore *store.RedisCacheStore
	pgPool     *pgxpool.Pool
}

// Cleanup closes everything that holds connections
func (s *Services) Cleanup() {
	if s.redisStore != nil {
		s.redisStore.Close()
	}
	if s.pgPool != nil {
		s.pgPool.Close()
	}
}

// initializeServices builds the cache store, the search log store and the
// rate limiter's flag cache from configuration
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Search logs live in the primary store backend
	switch cfg.StoreBackend {
	case config.StorePostgres:
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		services.pgPool = pool
		services.Logs = store.NewPostgresSearchLogStore(pool)
	default:
		services.Logs = store.NewMemorySearchLogStore()
	}

	// The price cache can live in a different backend than the logs; empty
	// means "same as the store backend"
	cacheBackend := cfg.CacheBackend
	if cacheBackend == "" {
		cacheBackend = cfg.StoreBackend
	}
	switch cacheBackend {
	case config.StoreRedis:
		services.redisStore = store.NewRedisCacheStore(cfg.RedisAddr, cfg.RedisDB)
		services.Cache = services.redisStore
	case config.StorePostgres:
		if services.pgPool == nil {
			if err := store.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
			pool, err := store.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			services.pgPool = pool
		}
		services.Cache = store.NewPostgresCacheStore(services.pgPool)
	default:
		services.Cache = store.NewMemoryCacheStore()
	}

	// Block flags go to memcache when configured, otherwise in-process
	if cfg.MemcacheAddr != "" {
		services.Flags = cache.NewMemcacheService(cfg.MemcacheAddr)
	} else {
		services.Flags = cache.NewMemoryService()
	}

	return services, nil
}
