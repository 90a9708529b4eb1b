// Package quota enforces the per-provider daily call budget.
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// dayFormat keys quota rows by UTC calendar day.
const dayFormat = "2006-01-02"

// Store persists one counter row per provider per day. IncrementIfUnder
// must be a single atomic conditional update at the storage layer, never a
// read-then-write in the caller, so overlapping cycles cannot double-spend.
type Store interface {
	IncrementIfUnder(ctx context.Context, provider, day string, ceiling int) (bool, error)
	Usage(ctx context.Context, provider, day string) (used, ceiling int, err error)
}

// Usage is a read-only snapshot of one provider's budget for one day.
type Usage struct {
	Provider  string `json:"provider"`
	Date      string `json:"date"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

// Manager gates outbound provider calls against the daily ceiling.
type Manager struct {
	store   Store
	clock   clockwork.Clock
	ceiling int
	logger  *slog.Logger
}

// NewManager creates a Manager with the given hard per-day ceiling.
func NewManager(store Store, ceiling int, clock clockwork.Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{store: store, clock: clock, ceiling: ceiling, logger: logger}
}

// CheckAndReserve atomically reserves one call for today if the budget
// allows it. A store failure denies the call: an unreachable counter must
// never turn into unmetered provider usage.
func (m *Manager) CheckAndReserve(ctx context.Context, provider string) bool {
	day := m.clock.Now().UTC().Format(dayFormat)
	permitted, err := m.store.IncrementIfUnder(ctx, provider, day, m.ceiling)
	if err != nil {
		m.logger.Error("quota store unreachable, denying call", "provider", provider, "error", err)
		return false
	}
	return permitted
}

// CurrentUsage reports today's consumption for provider.
func (m *Manager) CurrentUsage(ctx context.Context, provider string) (Usage, error) {
	day := m.clock.Now().UTC().Format(dayFormat)
	used, ceiling, err := m.store.Usage(ctx, provider, day)
	if err != nil {
		return Usage{}, err
	}
	if ceiling == 0 {
		ceiling = m.ceiling
	}
	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Provider: provider, Date: day, Used: used, Remaining: remaining}, nil
}

// Ceiling returns the configured daily ceiling.
func (m *Manager) Ceiling() int {
	return m.ceiling
}

// Day returns the UTC day key for t, exposed for the store's pruning query.
func Day(t time.Time) string {
	return t.UTC().Format(dayFormat)
}
