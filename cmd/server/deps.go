package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"contactlink/internal/contact/events"
	"contactlink/internal/contact/lock"
	"contactlink/internal/contact/service"
	"contactlink/internal/contact/store"
	"contactlink/internal/platform/config"
	"contactlink/internal/platform/kafka"
	"contactlink/internal/platform/postgres"
	"contactlink/internal/platform/redis"
	"contactlink/internal/platform/sqlite"
	httptransport "contactlink/internal/transport/http"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type storeBackend interface {
	service.Store
	pinger
}

// deps holds the backends selected by configuration and closes them in
// reverse order of construction.
type deps struct {
	store     storeBackend
	tx        service.ClusterTx
	publisher service.EventPublisher
	checks    []httptransport.HealthCheck
	closers   []func() error
}

func (d *deps) close(log *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn("close dependency", slog.Any("error", err))
		}
	}
}

func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger) (*deps, error) {
	d := &deps{}
	ok := false
	defer func() {
		if !ok {
			d.close(log)
		}
	}()

	db, err := d.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.checks = append(d.checks, httptransport.HealthCheck{Name: "store", Check: d.store.Ping})

	if err := d.selectTx(ctx, cfg, db, log); err != nil {
		return nil, err
	}
	if err := d.selectPublisher(ctx, cfg, log); err != nil {
		return nil, err
	}
	ok = true
	return d, nil
}

func (d *deps) openStore(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		d.store = pg
		return db, nil
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)
		lite := store.NewSQLite(db)
		if err := lite.Migrate(ctx); err != nil {
			return nil, err
		}
		d.store = lite
		return db, nil
	default:
		d.store = store.NewInMemory()
		return nil, nil
	}
}

// selectTx picks the cluster transaction. Cluster mode on postgres uses
// advisory locks so several replicas can share one database; elsewhere it
// uses in-process lock shards.
func (d *deps) selectTx(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger) error {
	switch cfg.Lock.Mode {
	case config.LockGlobal:
		d.tx = service.NewGlobalTx(d.store)
	case config.LockRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, client.Close)
		d.checks = append(d.checks, httptransport.HealthCheck{Name: "redis", Check: client.Health})
		d.tx = lock.NewRedisTx(client.Client, d.store,
			lock.WithLockTTL(cfg.Lock.TTL),
			lock.WithLockLogger(log),
		)
	default:
		if cfg.Store.Backend == config.StorePostgres {
			d.tx = lock.NewPostgresTx(db, d.store)
			return nil
		}
		d.tx = service.NewShardedTx(d.store)
	}
	return nil
}

func (d *deps) selectPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	logPublisher := events.NewLogPublisher(log)
	if !cfg.Kafka.Enabled() {
		d.publisher = logPublisher
		return nil
	}

	kcfg := kafka.Config{
		Brokers:           cfg.Kafka.Brokers,
		Topic:             cfg.Kafka.Topic,
		Partitions:        cfg.Kafka.Partitions,
		ReplicationFactor: 1,
		ClientID:          "contactlink",
	}
	client, err := kafka.NewClient(ctx, kcfg)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, closeKafka(client))
	if err := kafka.EnsureTopic(ctx, client, kcfg); err != nil {
		return fmt.Errorf("ensure topic %s: %w", kcfg.Topic, err)
	}
	d.checks = append(d.checks, httptransport.HealthCheck{
		Name:  "kafka",
		Check: func(ctx context.Context) error { return kafka.Health(ctx, client) },
	})
	d.publisher = events.NewKafkaPublisher(client, kcfg.Topic,
		events.WithFallback(logPublisher),
		events.WithKafkaLogger(log),
	)
	return nil
}

func closeKafka(client *kgo.Client) func() error {
	return func() error {
		client.Close()
		return nil
	}
}
