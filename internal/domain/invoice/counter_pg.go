package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic/internal/platform/db"
)

// PGCounter stores counters in the tenant's invoice_counters table. Inside a
// transaction started by db.TxRunner the increment commits or rolls back
// together with the visit write.
type PGCounter struct {
	pool *pgxpool.Pool
}

func NewCounterPG(pool *pgxpool.Pool) *PGCounter {
	return &PGCounter{pool: pool}
}

func (c *PGCounter) Next(ctx context.Context, doctorID string) (int64, error) {
	var seq int64
	err := db.Querier(ctx, c.pool).QueryRow(ctx, `
		INSERT INTO invoice_counters (doctor_id, seq, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (doctor_id) DO UPDATE
		SET seq = invoice_counters.seq + 1, updated_at = NOW()
		RETURNING seq`, doctorID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("increment counter for %s: %w", doctorID, err)
	}
	return seq, nil
}

func (c *PGCounter) Current(ctx context.Context, doctorID string) (int64, error) {
	var seq int64
	err := db.Querier(ctx, c.pool).QueryRow(ctx,
		`SELECT seq FROM invoice_counters WHERE doctor_id = $1`, doctorID).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter for %s: %w", doctorID, err)
	}
	return seq, nil
}

func (c *PGCounter) EnsureAtLeast(ctx context.Context, doctorID string, n int64) (int64, error) {
	var seq int64
	err := db.Querier(ctx, c.pool).QueryRow(ctx, `
		INSERT INTO invoice_counters (doctor_id, seq, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (doctor_id) DO UPDATE
		SET seq = GREATEST(invoice_counters.seq, EXCLUDED.seq), updated_at = NOW()
		RETURNING seq`, doctorID, n).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("raise counter for %s: %w", doctorID, err)
	}
	return seq, nil
}
