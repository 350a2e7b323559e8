package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/odyssey-statements/internal/jobs"
	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
	"github.com/odyssey-erp/odyssey-statements/internal/statements/engine"
)

// Statements bundles the recompute stack shared by the worker and the CLI.
type Statements struct {
	Repository *recompute.Repository
	Cache      *recompute.Cache
	Service    *recompute.Service
	Metrics    *jobmetrics.Metrics
}

// NewStatements wires repository, grid cache, engine driver and service.
// A nil redis client disables grid caching.
func NewStatements(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, registerer prometheus.Registerer, logger *slog.Logger) *Statements {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := jobmetrics.NewMetrics(registerer)
	repo := recompute.NewRepository(pool)
	cache := recompute.NewCache(redisClient, cfg.GridCacheTTL)
	driver := engine.NewDriver(
		engine.WithLogger(logger.With(slog.String("component", "statements.engine"))),
		engine.WithObserver(metrics),
	)
	service := recompute.NewService(repo, cache,
		recompute.WithLogger(logger.With(slog.String("component", "statements.recompute"))),
		recompute.WithDriver(driver),
		recompute.WithParallelism(cfg.RecomputeParallelism),
	)
	return &Statements{Repository: repo, Cache: cache, Service: service, Metrics: metrics}
}
