package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-statements/cmd/statements/cli"
	"github.com/odyssey-erp/odyssey-statements/internal/app"
	"github.com/odyssey-erp/odyssey-statements/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-statements/internal/platform/db"
	"github.com/odyssey-erp/odyssey-statements/internal/recompute"
)

// backend opens connections on first use and closes them on exit.
type backend struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	jobs   *cli.JobsCLI
}

func (r *backend) database(ctx context.Context) (*pgxpool.Pool, error) {
	if r.pool == nil {
		pool, err := db.New(ctx, r.cfg.PGDSN, db.WithMaxConns(r.cfg.PGMaxConns))
		if err != nil {
			return nil, err
		}
		r.pool = pool
	}
	return r.pool, nil
}

func (r *backend) statements(ctx context.Context) (cli.Statements, error) {
	pool, err := r.database(ctx)
	if err != nil {
		return nil, err
	}
	if r.redis == nil {
		client, err := cache.New(ctx, r.cfg.RedisAddr)
		if err != nil {
			r.logger.Warn("grid cache disabled", slog.Any("error", err))
		} else {
			r.redis = client
		}
	}
	return app.NewStatements(r.cfg, pool, r.redis, nil, r.logger).Service, nil
}

func (r *backend) queue(ctx context.Context) (cli.Queue, error) {
	if r.jobs == nil {
		jobsCLI, err := cli.NewJobsCLI(r.cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		r.jobs = jobsCLI
	}
	return r.jobs, nil
}

func (r *backend) migrate(ctx context.Context) error {
	pool, err := r.database(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, recompute.Schema)
	return err
}

func (r *backend) close() {
	if r.jobs != nil {
		if err := r.jobs.Close(); err != nil {
			r.logger.Warn("jobs close", slog.Any("error", err))
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	rt := &backend{cfg: cfg, logger: app.NewLogger(cfg)}

	root := cli.NewRootCmd(&cli.Env{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Statements: rt.statements,
		Queue:      rt.queue,
		Migrate:    rt.migrate,
	})
	err = root.ExecuteContext(ctx)
	rt.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
