package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/client-analyzer/internal/cache"
	"github.com/sells-group/client-analyzer/internal/ingest"
	"github.com/sells-group/client-analyzer/internal/metrics"
	"github.com/sells-group/client-analyzer/internal/query"
	"github.com/sells-group/client-analyzer/internal/resilience"
	"github.com/sells-group/client-analyzer/internal/scorer"
	"github.com/sells-group/client-analyzer/internal/store"
)

// appEnv holds the store, engine, pipeline and query service shared by the
// commands.
type appEnv struct {
	Store    store.Store
	Engine   *scorer.Engine
	Pipeline *ingest.Pipeline
	Query    *query.Service
	Metrics  *metrics.Metrics
	Cache    *cache.RedisCache // may be nil
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func connectRetry() resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = cfg.Store.ConnectAttempts
	return rc
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "analyzer.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		pool := &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
		return resilience.Connect(ctx, connectRetry(), "postgres", func(ctx context.Context) (store.Store, error) {
			return store.NewPostgres(ctx, cfg.Store.DatabaseURL, pool)
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func logPolicy(engine *scorer.Engine) {
	p := engine.Config()
	zap.L().Info("scoring policy loaded",
		zap.String("policy_file", p.PolicyFile),
		zap.Float64("rating_weight", p.RatingWeight),
		zap.Float64("review_weight", p.ReviewWeight),
		zap.Float64("location_weight", p.LocationWeight),
		zap.Float64("transaction_weight", p.TransactionWeight),
		zap.Int("high_threshold", p.HighThreshold),
		zap.Int("medium_threshold", p.MediumThreshold),
	)
}

// initEnv validates config for mode, opens and migrates the store, and wires
// the pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	policy, err := scorer.ResolveConfig(cfg.Scoring)
	if err != nil {
		return nil, eris.Wrap(err, "resolve scoring policy")
	}
	engine, err := scorer.New(policy)
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}
	logPolicy(engine)

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st, Engine: engine}
	if mode == "serve" {
		env.Metrics = metrics.New()
	}

	var qcache query.Cache
	opts := []ingest.Option{
		ingest.WithWorkers(cfg.Pipeline.Workers),
		ingest.WithMetrics(env.Metrics),
	}
	if cfg.Cache.RedisURL != "" {
		ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
		c, err := resilience.Connect(ctx, connectRetry(), "redis", func(ctx context.Context) (*cache.RedisCache, error) {
			return cache.NewRedis(ctx, cfg.Cache.RedisURL, ttl)
		})
		if err != nil {
			// The cache is optional; exports are rendered on every request without it.
			zap.L().Warn("export cache disabled", zap.Error(err))
		} else {
			env.Cache = c
			qcache = c
			opts = append(opts, ingest.WithInvalidator(c))
		}
	}

	env.Pipeline = ingest.New(st, engine, opts...)
	env.Query = query.New(st, qcache, env.Metrics)
	return env, nil
}
