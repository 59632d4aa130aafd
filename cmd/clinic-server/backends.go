package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/config"
	"github.com/clinicdesk/clinic/internal/domain/billing"
	"github.com/clinicdesk/clinic/internal/domain/invoice"
	"github.com/clinicdesk/clinic/internal/domain/visit"
	"github.com/clinicdesk/clinic/internal/platform/db"
	"github.com/clinicdesk/clinic/internal/platform/docstore"
	"github.com/clinicdesk/clinic/internal/platform/jobs"
	"github.com/clinicdesk/clinic/internal/platform/kv"
)

// healthProbe reports the state of one backing store.
type healthProbe func(ctx context.Context) (interface{}, error)

// backends holds the stores selected by configuration and the repositories
// built on them.
type backends struct {
	pool  *pgxpool.Pool
	store *docstore.Store
	redis *redis.Client

	appts   visit.AppointmentRepository
	tx      visit.Transactor
	counter invoice.Counter

	tenants jobs.TenantLister
	scope   jobs.TenantScope
	health  map[string]healthProbe
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{health: make(map[string]healthProbe)}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.appts = visit.NewAppointmentRepoPG(pool)
		b.tx = db.NewTxRunner(pool)
		b.counter = invoice.NewCounterPG(pool)
		b.tenants = func(ctx context.Context) ([]string, error) { return db.ListTenants(ctx, pool) }
		b.scope = func(ctx context.Context, tenant string, fn func(ctx context.Context) error) error {
			return db.WithTenantConn(ctx, pool, tenant, fn)
		}
		b.health["postgres"] = db.HealthCheck(pool)
		logger.Info().Msg("connected to postgres")

	case config.BackendMongo:
		store, err := docstore.Connect(ctx, docstore.Config{
			URI:            cfg.MongoURI,
			DatabasePrefix: cfg.MongoDatabasePrefix,
			Transactions:   cfg.MongoTransactions,
		})
		if err != nil {
			return nil, err
		}
		b.store = store
		b.appts = visit.NewAppointmentRepoMongo(store)
		b.tx = store
		b.counter = invoice.NewCounterMongo(store)
		b.tenants = store.Tenants
		b.scope = func(ctx context.Context, tenant string, fn func(ctx context.Context) error) error {
			if !db.ValidTenantID(tenant) {
				return fmt.Errorf("invalid tenant identifier: %s", tenant)
			}
			return fn(db.WithTenant(ctx, tenant))
		}
		b.health["mongo"] = store.HealthCheck()
		logger.Info().Bool("transactions", cfg.MongoTransactions).Msg("connected to mongo")

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.CounterBackend == config.CounterRedis {
		client, err := kv.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close(ctx)
			return nil, err
		}
		b.redis = client
		b.counter = invoice.NewCounterRedis(client)
		b.health["redis"] = kv.HealthCheck(client)
		logger.Info().Msg("invoice counters kept in redis")
	}

	return b, nil
}

func (b *backends) Close(ctx context.Context) {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.store != nil {
		b.store.Close(ctx)
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func newVisitService(cfg *config.Config, b *backends, invoices *invoice.Service) *visit.Service {
	return visit.NewService(b.appts, b.tx, invoices, visit.Options{
		Calculator:      billing.Calculator{RejectNegativeAmounts: cfg.RejectNegativeAmounts},
		CounterSharesTx: cfg.CounterSharesTx(),
	})
}
