package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/quoteboard/internal/config"
)

// Schema creates the mirror table.
const Schema = `
CREATE TABLE IF NOT EXISTS latest_quotes (
	symbol      TEXT PRIMARY KEY,
	fields      JSONB NOT NULL,
	instance_id TEXT NOT NULL,
	seq         BIGINT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Pools holds the mirror's store connections. Either may be nil.
type Pools struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

// NewPools connects every store configured in cfg.
func NewPools(ctx context.Context, cfg config.MirrorConfig) (*Pools, error) {
	p := &Pools{}

	if cfg.Postgres.Enabled() {
		pg, err := Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := EnsureSchema(ctx, pg); err != nil {
			pg.Close()
			return nil, err
		}
		p.Postgres = pg
	}

	if cfg.Redis.Enabled() {
		rdb, err := ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		p.Redis = rdb
	}

	return p, nil
}

// Connect creates a single connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the latest_quotes table if it is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create latest_quotes: %w", err)
	}
	return nil
}

// ConnectRedis creates a Redis client and checks it with PING.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(RedisOptions(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Close closes every open connection.
func (p *Pools) Close() {
	if p.Postgres != nil {
		p.Postgres.Close()
	}
	if p.Redis != nil {
		p.Redis.Close()
	}
}

// Ping verifies every open connection is healthy.
func (p *Pools) Ping(ctx context.Context) error {
	var errs []error
	if p.Postgres != nil {
		if err := p.Postgres.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ping postgres: %w", err))
		}
	}
	if p.Redis != nil {
		if err := p.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("ping redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
