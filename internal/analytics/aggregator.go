// Package analytics counts page views and interaction events in memory
// and flushes the aggregates to the store in batches, so a burst of
// events costs one write per distinct (event, program, social) tuple.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keydexhq/keydex/pkg/models"
)

// Store is the subset of the data layer the aggregator depends on.
type Store interface {
	UpsertAnalyticsCounts(ctx context.Context, counts []models.AnalyticsCount) error
}

type bucket struct {
	event   string
	program string
	social  string
}

// Aggregator accumulates event counts. The counter map is the only shared
// mutable state in the process; it is guarded by a mutex and swapped out
// wholesale on flush so Record never blocks on the store.
type Aggregator struct {
	store Store

	mu     sync.Mutex
	counts map[bucket]int64
}

// New creates an Aggregator backed by the given store.
func New(s Store) *Aggregator {
	return &Aggregator{store: s, counts: make(map[bucket]int64)}
}

// Record counts one event. Never blocks on I/O.
func (a *Aggregator) Record(event, programSlug, social string) {
	a.mu.Lock()
	a.counts[bucket{event: event, program: programSlug, social: social}]++
	a.mu.Unlock()
}

// Pending returns the number of distinct buckets awaiting flush.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.counts)
}

// Flush writes accumulated counts to the store. On failure the counts are
// merged back so they are retried on the next flush rather than lost.
func (a *Aggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	if len(a.counts) == 0 {
		a.mu.Unlock()
		return nil
	}
	pending := a.counts
	a.counts = make(map[bucket]int64)
	a.mu.Unlock()

	batch := make([]models.AnalyticsCount, 0, len(pending))
	for b, n := range pending {
		batch = append(batch, models.AnalyticsCount{
			Event:       b.event,
			ProgramSlug: b.program,
			Social:      b.social,
			Count:       n,
		})
	}

	if err := a.store.UpsertAnalyticsCounts(ctx, batch); err != nil {
		a.mu.Lock()
		for b, n := range pending {
			a.counts[b] += n
		}
		a.mu.Unlock()
		return fmt.Errorf("flush analytics counts: %w", err)
	}
	return nil
}

// Start flushes on a ticker until ctx is cancelled, then performs one
// final flush so shutdown does not drop counts. Intended to be launched
// as a goroutine from main.
func (a *Aggregator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.Flush(flushCtx); err != nil {
				slog.Error("final analytics flush failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				slog.Warn("analytics flush failed, counts retained", "error", err)
			}
		}
	}
}
