package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"
	gomongo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/internal/config"
	sfmongo "github.com/petrijr/sagaflow/mongo"
	"github.com/petrijr/sagaflow/pkg/api"
	eventmem "github.com/petrijr/sagaflow/pkg/eventbus/memory"
	eventredis "github.com/petrijr/sagaflow/pkg/eventbus/redis"
	sfpostgres "github.com/petrijr/sagaflow/postgres"
	sfredis "github.com/petrijr/sagaflow/redis"
)

// backend is a run store and, for durable stores, the task queue living
// next to it. A nil queue means runs and tasks stay in process memory.
type backend struct {
	store sagaflow.RunStore
	queue sagaflow.Queue
	close func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return &backend{store: sagaflow.NewInMemoryStore(), close: func() error { return nil }}, nil

	case config.StoreSQLite:
		db, err := sql.Open("sqlite", cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlBackend(db, func(db *sql.DB) (sagaflow.RunStore, sagaflow.Queue, error) {
			store, err := sagaflow.NewSQLiteStore(db)
			if err != nil {
				return nil, nil, err
			}
			q, err := sagaflow.NewSQLiteQueue(db)
			return store, q, err
		})

	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return sqlBackend(db, func(db *sql.DB) (sagaflow.RunStore, sagaflow.Queue, error) {
			store, err := sfpostgres.NewPostgresStore(ctx, db)
			if err != nil {
				return nil, nil, err
			}
			q, err := sfpostgres.NewPostgresQueue(ctx, db)
			return store, q, err
		})

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &backend{
			store: sfredis.NewRedisStore(client, ""),
			queue: sfredis.NewRedisQueue(client, ""),
			close: client.Close,
		}, nil

	case config.StoreMongo:
		client, err := gomongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return &backend{
			store: sfmongo.NewMongoStore(client),
			queue: sfmongo.NewMongoQueue(client, "", ""),
			close: func() error { return client.Disconnect(context.Background()) },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.Store)
	}
}

func sqlBackend(db *sql.DB, open func(*sql.DB) (sagaflow.RunStore, sagaflow.Queue, error)) (*backend, error) {
	store, q, err := open(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &backend{store: store, queue: q, close: db.Close}, nil
}

// openEvents returns the configured event sink and a function releasing it.
func openEvents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (api.EventSink, func() error, error) {
	switch cfg.Events {
	case config.EventsMemory:
		bus := eventmem.New(logger)
		bus.Subscribe(eventmem.Wildcard, func(ctx context.Context, msg api.EventMessage) error {
			logger.Info("event published", zap.String("event", msg.Name), zap.String("event_id", msg.ID))
			return nil
		})
		return bus, func() error { return nil }, nil

	case config.EventsRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		sink := eventredis.NewStreamsSink(client, eventredis.Options{
			MaxLen: cfg.EventStreamsMax,
			Logger: logger,
		})
		return sink, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported event sink: %s", cfg.Events)
	}
}
