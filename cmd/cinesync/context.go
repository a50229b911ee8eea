package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/config"
	"github.com/JustinTDCT/CineSync/internal/crawl"
	"github.com/JustinTDCT/CineSync/internal/db"
	"github.com/JustinTDCT/CineSync/internal/jobs"
	"github.com/JustinTDCT/CineSync/internal/logging"
	"github.com/JustinTDCT/CineSync/internal/metrics"
	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/search"
	"github.com/JustinTDCT/CineSync/internal/sources"
	"github.com/JustinTDCT/CineSync/internal/syncer"
)

// commandContext lazily builds the shared dependencies of a command and
// releases them once it finishes.
type commandContext struct {
	envDir string

	configOnce sync.Once
	config     *config.Config
	logger     *zap.Logger
	configErr  error

	db      *db.DB
	closers []func()
}

func (c *commandContext) ensureConfig() (*config.Config, *zap.Logger, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadFrom(c.envDir)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			c.configErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.config, c.logger = cfg, logger
		c.onClose(func() { _ = logger.Sync() })
	})
	return c.config, c.logger, c.configErr
}

func (c *commandContext) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

func (c *commandContext) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *commandContext) database(ctx context.Context) (*db.DB, error) {
	if c.db != nil {
		return c.db, nil
	}
	cfg, _, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c.db = database
	c.onClose(func() { database.Close() })
	return database, nil
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// pipeline is the wired crawl and sync services.
type pipeline struct {
	db       *db.DB
	registry *prometheus.Registry
	crawl    *crawl.Service
	sync     *syncer.Service
}

// newPipeline wires the services on top of enqueuer. A nil enqueuer runs
// every job inline in the caller.
func (c *commandContext) newPipeline(ctx context.Context, enqueuer crawl.Enqueuer) (*pipeline, error) {
	cfg, logger, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	database, err := c.database(ctx)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var rdb *redis.Client
	if cfg.SearchNotifier == search.KindRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		c.onClose(func() { rdb.Close() })
	}
	var pusher search.ListPusher
	if rdb != nil {
		pusher = rdb
	}
	notifier, err := search.New(cfg.SearchNotifier, database.DB, pusher, cfg.SearchRedisKey)
	if err != nil {
		return nil, err
	}

	inline, isInline := enqueuer.(*jobs.Inline)
	if enqueuer == nil {
		inline, isInline = &jobs.Inline{}, true
		enqueuer = inline
	}

	crawlSvc, err := crawl.New(ctx, database.DB, cfg.SourceConfigs(), enqueuer, crawl.Options{
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		People:     cfg.PeopleEnrichment,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	syncSvc := syncer.NewService(database.DB, sources.DefaultRegistry(), notifier, logger).
		WithCredits(crawlSvc).
		WithMetrics(m)

	if isInline {
		inline.Crawl, inline.Sync = crawlSvc, syncSvc
	}
	return &pipeline{db: database, registry: registry, crawl: crawlSvc, sync: syncSvc}, nil
}

// newQueue returns the Redis-backed job queue.
func (c *commandContext) newQueue(ctx context.Context) (*jobs.Queue, error) {
	cfg, logger, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	database, err := c.database(ctx)
	if err != nil {
		return nil, err
	}
	q := jobs.NewQueue(jobs.Config{
		Redis:               redisOpt(cfg),
		DiscoverConcurrency: cfg.DiscoverConcurrency,
		DetailConcurrency:   cfg.DetailConcurrency,
		SyncConcurrency:     cfg.SyncConcurrency,
		MaxAttempts:         cfg.JobMaxAttempts,
		BackoffBase:         cfg.JobBackoffBase,
		Audit:               repository.NewCrawlLogRepository(database.DB),
		Logger:              logger,
	})
	c.onClose(q.Stop)
	return q, nil
}
