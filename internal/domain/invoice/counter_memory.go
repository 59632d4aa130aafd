package invoice

import (
	"context"
	"sync"

	"github.com/clinicdesk/clinic/internal/platform/db"
)

// MemoryCounter keeps counters in process memory, keyed by tenant and
// doctor. It is used by tests and single-process development setups.
type MemoryCounter struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{seqs: make(map[string]int64)}
}

func memoryKey(ctx context.Context, doctorID string) string {
	return db.TenantFromContext(ctx) + "/" + doctorID
}

func (m *MemoryCounter) Next(ctx context.Context, doctorID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(ctx, doctorID)
	m.seqs[k]++
	return m.seqs[k], nil
}

func (m *MemoryCounter) Current(ctx context.Context, doctorID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqs[memoryKey(ctx, doctorID)], nil
}

func (m *MemoryCounter) EnsureAtLeast(ctx context.Context, doctorID string, n int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(ctx, doctorID)
	if m.seqs[k] < n {
		m.seqs[k] = n
	}
	return m.seqs[k], nil
}
