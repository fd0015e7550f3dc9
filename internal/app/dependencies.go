package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/quote-engine/internal/calculator"
	"github.com/noah-isme/quote-engine/internal/config"
	"github.com/noah-isme/quote-engine/internal/health"
	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/quote"
	"github.com/noah-isme/quote-engine/internal/ratelimit"
	"github.com/noah-isme/quote-engine/internal/resilience"
	"github.com/noah-isme/quote-engine/internal/tasks"
)

const (
	applicationName    = "quote-engine"
	rateLimitPrefix    = "ratelimit:quote:"
	connectTimeout     = 5 * time.Second
	defaultPingTimeout = time.Second
)

// Dependencies holds the process-wide connections and the quote components
// built on top of them.
type Dependencies struct {
	DB         *pgxpool.Pool
	Redis      *redis.Client
	TaskClient *asynq.Client

	Source    calculator.Source
	Limiter   ratelimit.Limiter
	Publisher quote.Publisher
	Signer    *quote.Signer
}

// Options tweaks instrumentation during Open.
type Options struct {
	RedisMetrics bool
}

// Open connects to Postgres and, when configured, Redis, then assembles the
// calculator source, rate limiter, quote publisher and token signer.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	deps := &Dependencies{}
	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	deps.DB = pool

	if cfg.RedisEnabled() {
		rdb, err := openRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = rdb
	}

	signer, err := quote.NewSigner([]byte(cfg.QuoteTokenSecret), cfg.QuoteTokenIssuer, cfg.QuoteTokenTTL)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("quote signer: %w", err)
	}
	deps.Signer = signer

	store := &calculator.GuardedSource{
		Inner: calculator.NewRepository(pool),
		Breaker: resilience.NewBreaker(resilience.Options{
			Target:       "calculator_store",
			MinRequests:  cfg.StoreBreakerMinRequests,
			FailureRatio: cfg.StoreBreakerFailureRatio,
			OpenFor:      cfg.StoreBreakerOpenFor,
			Logger:       logger,
		}),
	}
	deps.Source = NewSource(store, deps.Redis, cfg.ConfigCacheTTL, logger)
	if deps.Limiter, err = NewLimiter(cfg.RateLimitStrategy, deps.Redis); err != nil {
		deps.Close()
		return nil, err
	}
	if cfg.QuoteTasksEnabled && deps.Redis != nil {
		deps.TaskClient = asynq.NewClientFromRedisClient(deps.Redis)
	}
	deps.Publisher = NewPublisher(cfg, deps.TaskClient)
	return deps, nil
}

func openPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewSource puts a Redis read-through cache in front of inner when rdb is set.
func NewSource(inner calculator.Source, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) calculator.Source {
	if rdb == nil {
		return inner
	}
	return &calculator.CachedSource{
		Inner:  inner,
		Cache:  calculator.NewCache(rdb, ttl),
		Logger: logger.With().Str("component", "config_cache").Logger(),
	}
}

// NewLimiter returns the limiter for strategy, or nil when Redis is off.
func NewLimiter(strategy string, rdb *redis.Client) (ratelimit.Limiter, error) {
	if rdb == nil {
		return nil, nil
	}
	switch strategy {
	case config.RateLimitFixed:
		fw, err := ratelimit.NewRedisFixedWindow(rdb, rateLimitPrefix)
		if err != nil {
			return nil, err
		}
		return fw, nil
	case config.RateLimitSliding, "":
		return ratelimit.SlidingWindow{Client: rdb, Prefix: rateLimitPrefix}, nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", strategy)
	}
}

// NewPublisher hands quotes to asynq when a task client is available.
func NewPublisher(cfg *config.Config, client tasks.Enqueuer) quote.Publisher {
	if client == nil || (!cfg.QuoteTasksEnabled) {
		return quote.NopPublisher{}
	}
	return &tasks.Publisher{
		Client:   client,
		Queue:    cfg.QuoteTasksQueue,
		MaxRetry: cfg.QuoteTasksMaxRetry,
	}
}

// QuoteService builds the quote service on top of the dependencies.
func (d *Dependencies) QuoteService(logger zerolog.Logger) *quote.Service {
	return &quote.Service{
		Source:    d.Source,
		Publisher: d.Publisher,
		Signer:    d.Signer,
		Logger:    logger.With().Str("component", "quote").Logger(),
	}
}

// PingDB implements health.Checker.
func (d *Dependencies) PingDB(ctx context.Context, timeout time.Duration) error {
	if d.DB == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout(timeout))
	defer cancel()
	return d.DB.Ping(ctx)
}

// PingRedis implements health.Checker. Redis is optional, so a missing client
// reports health.ErrDisabled.
func (d *Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return health.ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout(timeout))
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

func pingTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultPingTimeout
	}
	return d
}

// Close releases connections. The asynq client shares the Redis connection
// and is not closed separately.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	return errors.Join(errs...)
}
