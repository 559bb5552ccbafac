package cli

import (
	"context"
	"fmt"
	"time"

	"signsense-quiz-service/internal/app"
	"signsense-quiz-service/internal/config"
	"signsense-quiz-service/internal/infra/file"
	"signsense-quiz-service/internal/infra/memory"
	mongostore "signsense-quiz-service/internal/infra/mongo"
	pgloader "signsense-quiz-service/internal/infra/postgres"
	redisinfra "signsense-quiz-service/internal/infra/redis"
	"signsense-quiz-service/internal/infra/sqlite"
	"signsense-quiz-service/internal/logging"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// deps holds everything built from config plus the closers to release it.
type deps struct {
	logger    *zap.Logger
	redis     *redis.Client
	pool      *pgxpool.Pool
	rooms     app.RoomStore
	questions app.QuestionRepository
	closers   []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development)
}

// wire connects the configured backends. Question loading prefers Postgres,
// then JSON files; caching prefers Redis, then process memory.
func wire(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	d := &deps{logger: logger}

	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = d.redis.Close() })
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.pool = pool
		d.closers = append(d.closers, pool.Close)
	}

	var loader memory.QuestionLoader = file.NewQuestionLoader(cfg.Questions.Dir)
	if d.pool != nil {
		loader = pgloader.NewQuestionLoader(d.pool)
	}
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	if d.redis != nil {
		d.questions = redisinfra.NewQuestionCache(d.redis, loader, questionTTL, logger)
	} else {
		d.questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	if err := d.openRoomStore(ctx, cfg); err != nil {
		d.Close()
		return nil, err
	}
	logger.Info("backends ready",
		zap.String("store", cfg.Store.Backend),
		zap.Bool("redis", d.redis != nil),
		zap.Bool("postgres", d.pool != nil),
	)
	return d, nil
}

func (d *deps) openRoomStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		d.rooms = redisinfra.NewRoomStore(d.redis, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		d.rooms = store
		d.closers = append(d.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
		})
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		d.rooms = store
		d.closers = append(d.closers, func() { _ = store.Close() })
	default:
		d.rooms = memory.NewRoomStore()
	}
	return nil
}

// retryPolicy overlays configured values on app.DefaultRetryPolicy.
func retryPolicy(cfg config.Config) app.RetryPolicy {
	p := app.DefaultRetryPolicy()
	if cfg.Store.Retry.Attempts > 0 {
		p.Attempts = cfg.Store.Retry.Attempts
	}
	p.InitialInterval = config.TTLDuration(cfg.Store.Retry.InitialInterval, p.InitialInterval)
	p.MaxInterval = config.TTLDuration(cfg.Store.Retry.MaxInterval, p.MaxInterval)
	p.Timeout = config.TTLDuration(cfg.Store.Timeout, p.Timeout)
	return p
}
