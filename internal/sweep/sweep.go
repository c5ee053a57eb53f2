// Package sweep expires CD keys whose validity window has passed. The
// sweep is a best-effort batch: each key is committed independently and
// per-key failures are collected rather than aborting the run.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/keydexhq/keydex/internal/cache"
	"github.com/keydexhq/keydex/pkg/models"
)

// Store is the subset of the data layer the sweeper depends on.
type Store interface {
	ListKeysDueForExpiry(ctx context.Context, now time.Time) ([]*models.CDKey, error)
	MarkKeyExpired(ctx context.Context, id uuid.UUID, now time.Time) error
}

// Gate throttles sweeps across instances. AcquireGate returns false when
// another instance swept within the minimum interval.
type Gate interface {
	AcquireGate(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Result summarizes one sweep run.
type Result struct {
	Expired int   `json:"expired"`
	Failed  int   `json:"failed"`
	Err     error `json:"-"`
}

// Success reports whether every due key was expired.
func (r *Result) Success() bool {
	return r.Failed == 0
}

// Message renders a human-readable summary for API responses.
func (r *Result) Message() string {
	if r.Failed == 0 {
		return fmt.Sprintf("expired %d keys", r.Expired)
	}
	return fmt.Sprintf("expired %d keys, %d failed", r.Expired, r.Failed)
}

// Sweeper runs the expiry sweep. Safe for concurrent use; all state is
// read-only after construction.
type Sweeper struct {
	store       Store
	gate        Gate
	minInterval time.Duration
	now         func() time.Time
}

// New creates a Sweeper. gate may be nil, in which case RunGated never
// throttles.
func New(s Store, g Gate, minInterval time.Duration) *Sweeper {
	return &Sweeper{
		store:       s,
		gate:        g,
		minInterval: minInterval,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run expires every key whose valid_until is at or before now and whose
// status is not already expired. Re-running when nothing has newly
// expired changes nothing. One key's failure does not block the rest;
// failures are joined into Result.Err.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	now := s.now()

	due, err := s.store.ListKeysDueForExpiry(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list keys due for expiry: %w", err)
	}

	res := &Result{}
	var failures []error
	for _, k := range due {
		if err := s.store.MarkKeyExpired(ctx, k.ID, now); err != nil {
			res.Failed++
			failures = append(failures, fmt.Errorf("expire key %s: %w", k.ID, err))
			continue
		}
		res.Expired++
	}
	res.Err = errors.Join(failures...)
	return res, nil
}

// RunGated runs the sweep only if the shared minimum-interval gate can be
// claimed. Returns skipped=true when another instance swept recently.
func (s *Sweeper) RunGated(ctx context.Context) (res *Result, skipped bool, err error) {
	if s.gate != nil {
		ok, err := s.gate.AcquireGate(ctx, cache.SweepGateKey(), s.minInterval)
		if err != nil {
			return nil, false, fmt.Errorf("acquire sweep gate: %w", err)
		}
		if !ok {
			return nil, true, nil
		}
	}

	res, err = s.Run(ctx)
	return res, false, err
}

// Start runs the sweep on a ticker until ctx is cancelled. Intended to be
// launched as a goroutine from main.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, skipped, err := s.RunGated(ctx)
			switch {
			case err != nil:
				slog.Error("scheduled sweep failed", "error", err)
			case skipped:
				slog.Debug("scheduled sweep skipped, gate held")
			default:
				if res.Err != nil {
					slog.Warn("scheduled sweep partially failed",
						"expired", res.Expired, "failed", res.Failed, "error", res.Err)
				} else if res.Expired > 0 {
					slog.Info("scheduled sweep expired keys", "expired", res.Expired)
				}
			}
		}
	}
}
