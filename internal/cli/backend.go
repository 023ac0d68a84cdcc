package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"exam-service/internal/app"
	"exam-service/internal/config"
	"exam-service/internal/infra/blob"
	"exam-service/internal/infra/memory"
	pgloader "exam-service/internal/infra/postgres"
	redisinfra "exam-service/internal/infra/redis"
	"exam-service/internal/infra/sqldb"
	"exam-service/internal/logger"
	"exam-service/internal/remote"
)

// backend bundles the repositories selected by config together with the
// cache and feed store layered on top of them.
type backend struct {
	exams   app.ExamRepository
	results app.ResultRepository
	cache   app.ExamCache
	feeds   app.FeedRepository
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log *logger.Logger) (*backend, error) {
	b := &backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
	}

	var loader memory.ExamLoader
	switch cfg.Store.Backend {
	case config.BackendMemory:
		store := blob.NewStore(memory.NewBucket())
		b.exams, b.results, loader = store, store, store

	case config.BackendBlob:
		var bucket blob.Bucket
		if cfg.Blob.Driver == "redis" {
			bucket = redisinfra.NewBucket(redisClient, cfg.Blob.Prefix)
		} else {
			fs, err := blob.NewFSBucket(cfg.Blob.Dir)
			if err != nil {
				return nil, err
			}
			bucket = fs
		}
		store := blob.NewStore(bucket)
		b.exams, b.results, loader = store, store, store

	case config.BackendSQL:
		db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		if _, err := sqldb.Migrate(ctx, db); err != nil {
			return nil, err
		}
		store := sqldb.NewStore(db)
		b.exams, b.results, loader = store, store, store

		// Postgres deployments read exams through pgx, like the cache loaders elsewhere.
		if cfg.Database.Driver == sqldb.DriverPostgres {
			pool, err := pgxpool.Connect(ctx, cfg.Database.DSN)
			if err != nil {
				return nil, fmt.Errorf("connect pgx pool: %w", err)
			}
			b.closers = append(b.closers, pool.Close)
			loader = pgloader.NewExamLoader(pool)
		}

	case config.BackendRemote:
		client, err := openRemote(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		b.exams, b.results, loader = client, client, client

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	if redisClient != nil {
		b.cache = redisinfra.NewExamCache(redisClient, loader, cacheTTL)
		feeds := redisinfra.NewFeedStore(redisClient, log)
		b.feeds = feeds
		b.closers = append(b.closers, feeds.Close)
	} else {
		b.cache = memory.NewExamCache(loader, cacheTTL)
		b.feeds = memory.NewFeedStore()
	}

	ok = true
	return b, nil
}

// openRemote builds the upstream client and authenticates it, reusing a
// session saved by the login command while it is still valid.
func openRemote(ctx context.Context, cfg config.Config, log *logger.Logger) (*remote.Client, error) {
	client := remote.New(remote.Options{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   config.TTLDuration(cfg.Remote.Timeout, 15*time.Second),
		SubjectID: cfg.Remote.SubjectID,
	}, log)

	sessions, err := sessionStore(cfg)
	if err != nil {
		return nil, err
	}
	saved, err := sessions.LoadSession(ctx)
	switch {
	case err == nil && saved.ExpiresAt.After(time.Now().Add(time.Minute)):
		client.SetToken(saved.Token)
		log.Info("reusing saved upstream session", "expiresAt", saved.ExpiresAt)
		return client, nil
	case err != nil && !errors.Is(err, blob.ErrNotExist):
		log.Warn("ignoring unreadable saved session", "error", err)
	}

	if cfg.Remote.Login == "" {
		return nil, errors.New("no saved upstream session; run the login command or set remote.login")
	}
	session, err := client.Login(ctx, cfg.Remote.Login, cfg.Remote.Password)
	if err != nil {
		return nil, err
	}
	if err := sessions.SaveSession(ctx, session); err != nil {
		log.Warn("could not save upstream session", "error", err)
	}
	return client, nil
}

// sessionStore keeps the upstream session next to the offline blob data.
func sessionStore(cfg config.Config) (*blob.Store, error) {
	fs, err := blob.NewFSBucket(cfg.Blob.Dir)
	if err != nil {
		return nil, err
	}
	return blob.NewStore(fs), nil
}

func newLogger(cfg config.Config) (*logger.Logger, error) {
	return logger.New(logger.Options{Mode: cfg.Log.Mode, File: cfg.Log.File})
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
