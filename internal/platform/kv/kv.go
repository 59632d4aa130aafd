// Package kv builds the Redis client.
package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinic/internal/platform/db"
)

// KeyPrefix namespaces every key the server writes.
const KeyPrefix = "clinic"

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ClientName = db.ApplicationName

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Key joins parts under the tenant namespace: clinic:<tenant>:<parts...>.
func Key(tenantID string, parts ...string) string {
	return KeyPrefix + ":" + tenantID + ":" + strings.Join(parts, ":")
}

// HealthCheck pings the server and reports pool statistics. It matches the
// store health probe signature used by the /health/store endpoint.
func HealthCheck(client *redis.Client) func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		err := client.Ping(ctx).Err()
		st := client.PoolStats()
		return map[string]interface{}{
			"healthy":     err == nil,
			"total_conns": st.TotalConns,
			"idle_conns":  st.IdleConns,
			"timeouts":    st.Timeouts,
		}, err
	}
}
