// Package docstore connects to MongoDB and resolves one database per tenant.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/clinicdesk/clinic/internal/platform/db"
)

// ErrNoTenant is returned when a tenant-scoped operation runs without a
// tenant in its context.
var ErrNoTenant = errors.New("no tenant in context")

// Store wraps a MongoDB client.
type Store struct {
	client       *mongo.Client
	prefix       string
	transactions bool
}

// Config holds connection settings.
type Config struct {
	URI            string
	DatabasePrefix string
	// Transactions enables multi-document transactions; the server must be
	// a replica set or sharded cluster.
	Transactions bool
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(db.ApplicationName).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return New(client, cfg.DatabasePrefix, cfg.Transactions), nil
}

// New wraps an existing client.
func New(client *mongo.Client, prefix string, transactions bool) *Store {
	if prefix == "" {
		prefix = "clinic"
	}
	return &Store{client: client, prefix: prefix, transactions: transactions}
}

// DatabaseName returns the database holding a tenant's collections.
func (s *Store) DatabaseName(tenantID string) string {
	return s.prefix + "_" + tenantID
}

// Database returns the database of the tenant stored in ctx.
func (s *Store) Database(ctx context.Context) (*mongo.Database, error) {
	tenantID := db.TenantFromContext(ctx)
	if tenantID == "" {
		return nil, ErrNoTenant
	}
	if !db.ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	return s.client.Database(s.DatabaseName(tenantID)), nil
}

// Collection returns a collection in the tenant database stored in ctx.
func (s *Store) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	d, err := s.Database(ctx)
	if err != nil {
		return nil, err
	}
	return d.Collection(name), nil
}

// Transactional reports whether WithinTx runs a real transaction.
func (s *Store) Transactional() bool {
	return s.transactions
}

// WithinTx runs fn inside a multi-document transaction when transactions are
// enabled. Otherwise fn runs directly and each write commits on its own.
// Calls made while a session is already active join it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// tenantPattern matches the names of tenant databases under the prefix.
func (s *Store) tenantPattern() string {
	return "^" + regexp.QuoteMeta(s.prefix) + "_"
}

// Tenants lists the tenant IDs that have a database under the prefix.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	names, err := s.client.ListDatabaseNames(ctx, bson.M{
		"name": bson.M{"$regex": s.tenantPattern()},
	})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	tenants := make([]string, 0, len(names))
	for _, n := range names {
		id := n[len(s.prefix)+1:]
		if db.ValidTenantID(id) {
			tenants = append(tenants, id)
		}
	}
	return tenants, nil
}

// HealthCheck pings the primary. It matches the store health probe
// signature used by the /health/store endpoint.
func (s *Store) HealthCheck() func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		err := s.client.Ping(ctx, readpref.Primary())
		return map[string]interface{}{
			"healthy":      err == nil,
			"transactions": s.transactions,
		}, err
	}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
