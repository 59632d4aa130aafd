package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ReconcileJobName is the name the counter reconciliation runs under.
const ReconcileJobName = "invoice-counter-reconcile"

// TenantLister returns every tenant known to the store.
type TenantLister func(ctx context.Context) ([]string, error)

// TenantScope runs fn with ctx bound to tenant.
type TenantScope func(ctx context.Context, tenant string, fn func(ctx context.Context) error) error

// CounterReconciler raises invoice counters for the tenant carried by ctx.
type CounterReconciler interface {
	ReconcileCounters(ctx context.Context) (int, error)
}

// ReconcileCounters returns a job that reconciles invoice counters for every
// tenant. A failing tenant does not stop the others.
func ReconcileCounters(tenants TenantLister, scope TenantScope, rec CounterReconciler) Job {
	return func(ctx context.Context) error {
		ids, err := tenants(ctx)
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}

		log := zerolog.Ctx(ctx)
		var errs []error
		total := 0
		for _, tenant := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := scope(ctx, tenant, func(ctx context.Context) error {
				tlog := log.With().Str("tenant", tenant).Logger()
				n, err := rec.ReconcileCounters(tlog.WithContext(ctx))
				total += n
				return err
			})
			if err != nil {
				log.Warn().Err(err).Str("tenant", tenant).Msg("counter reconciliation failed")
				errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
			}
		}
		log.Info().Int("tenants", len(ids)).Int("raised", total).Msg("counter reconciliation done")
		return errors.Join(errs...)
	}
}
