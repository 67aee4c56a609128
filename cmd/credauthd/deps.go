package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/alebarre/credauth"
	"github.com/alebarre/credauth/internal/config"
	"github.com/alebarre/credauth/notify"
	"github.com/alebarre/credauth/store/postgres"
)

// runtime holds the engine and the connections it was built over.
type runtime struct {
	engine *credauth.Engine
	pool   *pgxpool.Pool
	redis  *redis.Client
}

func (r *runtime) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close() //nolint:errcheck // shutdown path
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

func requireDatabaseURL(s config.Settings) error {
	if s.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required (flag --database.url or CREDAUTH_DATABASE__URL)")
	}
	return nil
}

// openRuntime builds an engine over the Postgres stores. One-time codes and
// login throttles move to Redis when redis.addr is set.
func openRuntime(ctx context.Context, s config.Settings, logger *slog.Logger) (*runtime, error) {
	if err := requireDatabaseURL(s); err != nil {
		return nil, err
	}
	cfg, err := s.EngineConfig()
	if err != nil {
		return nil, err
	}

	pool, err := postgres.Connect(ctx, s.Database.URL)
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}
	rt := &runtime{pool: pool}

	b := credauth.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithNotifier(notify.NewLogNotifier(logger)).
		WithAuditSink(credauth.SlogSink{Logger: logger.With("component", "audit")}).
		WithCredentialStore(postgres.NewCredentialStore(pool)).
		WithSessionStore(postgres.NewSessionStore(pool)).
		WithHistoryStore(postgres.NewHistoryStore(pool))

	if s.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		rt.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", s.Redis.Addr).Wrap(err)
		}
		b = b.WithRedis(client)
	} else {
		b = b.WithCodeStore(postgres.NewCodeStore(pool))
	}

	engine, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	rt.engine = engine
	return rt, nil
}
