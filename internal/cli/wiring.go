package cli

import (
	"context"
	"fmt"
	"time"

	"examprep-service/internal/app"
	"examprep-service/internal/config"
	"examprep-service/internal/events"
	"examprep-service/internal/infra/amqp"
	"examprep-service/internal/infra/memory"
	"examprep-service/internal/infra/postgres"
	rediscache "examprep-service/internal/infra/redis"
	"examprep-service/internal/logger"
	"examprep-service/internal/stats"
	"examprep-service/internal/store"
	"examprep-service/internal/taxonomy"
	"examprep-service/internal/versioning"
	"github.com/redis/go-redis/v9"
)

// services is everything the subcommands share once the backends are connected.
type services struct {
	attempts  *app.AttemptService
	publisher *versioning.Publisher
	// authoring is nil when running against the in-memory stores.
	authoring *postgres.Authoring
	// memory is set only when no postgres url is configured.
	memory  *memorySink
	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServices connects postgres, redis and rabbitmq when configured and falls back
// to the in-memory implementations otherwise.
func buildServices(ctx context.Context, cfg config.Config, log *logger.Logger) (*services, error) {
	svc := &services{}

	var (
		st     store.Store
		reader taxonomy.Reader
		loader memory.VersionLoader
	)
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL, config.Duration(cfg.Postgres.Timeout, 5*time.Second))
		svc.closers = append(svc.closers, func() { db.Close() })
		if err := db.PingContext(ctx); err != nil {
			svc.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		pool, err := postgres.ConnectPool(ctx, cfg.Postgres.URL)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, pool.Close)

		st = postgres.NewStore(db)
		reader = postgres.NewTaxonomyReader(pool)
		loader = postgres.NewVersionLoader(pool)
		svc.authoring = postgres.NewAuthoring(db)
	} else {
		log.Warn("postgres url is empty, using in-memory stores")
		tax, _ := memory.NewTaxonomy()
		mem := memory.NewStore()
		st, reader, loader = mem, tax, mem
		svc.memory = &memorySink{taxonomy: tax, store: mem}
	}

	versionTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
	var versions app.VersionReader
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, func() { client.Close() })
		versions = rediscache.NewVersionCache(client, loader, versionTTL, log)
	} else {
		versions = memory.NewVersionCache(loader, versionTTL)
	}

	var pub events.Publisher = events.Nop{}
	if cfg.AMQP.URL != "" {
		p, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, func() { p.Close() })
		pub = p
	}

	retry := store.RetryPolicy{
		MaxRetries: cfg.SubmitMaxRetries(),
		Interval:   config.Duration(cfg.Submit.RetryInterval, 50*time.Millisecond),
	}
	engine := stats.NewEngine(taxonomy.NewResolver(reader, cfg.Taxonomy.MaxDepth), log)
	svc.attempts = app.NewAttemptService(st, versions, engine, pub, log, retry)
	svc.publisher = versioning.NewPublisher(st, pub, log, retry)
	return svc, nil
}

// withServices loads config, builds the logger and the services, then runs fn.
func withServices(ctx context.Context, configPath string, fn func(ctx context.Context, cfg config.Config, log *logger.Logger, svc *services) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	svc, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, cfg, log, svc)
}
