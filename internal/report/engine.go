// Package report implements the anti-abuse core of Keydex: duplicate
// detection for key reports keyed by (visitor fingerprint, program, key
// hash), and the owner-validated renewal transition between report event
// types.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keydexhq/keydex/internal/fingerprint"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/pkg/models"
)

var (
	// ErrInvalidEventType means the submitted event type is outside the
	// three-value enum.
	ErrInvalidEventType = errors.New("invalid report event type")

	// ErrNotFoundOrAccessDenied covers both a missing report id and a
	// fingerprint mismatch. The two are intentionally indistinguishable so
	// a non-owner cannot probe for report existence.
	ErrNotFoundOrAccessDenied = errors.New("report not found or access denied")

	// ErrFingerprintUnavailable means no fingerprint could be computed.
	// Endpoints that deduplicate must reject the request in that case;
	// proceeding without a fingerprint would make deduplication meaningless.
	ErrFingerprintUnavailable = errors.New("visitor fingerprint unavailable")

	// ErrDuplicate is returned by Create when a live report already exists
	// for the tuple. The unique index makes this race-safe.
	ErrDuplicate = store.ErrDuplicateReport
)

// Store is the subset of the data layer the engine depends on.
type Store interface {
	GetReportByTuple(ctx context.Context, visitorHash, programSlug, keyHash string) (*models.KeyReport, error)
	GetReportForVisitor(ctx context.Context, id uuid.UUID, visitorHash string) (*models.KeyReport, error)
	CreateReport(ctx context.Context, report *models.KeyReport) error
	UpdateReportEvent(ctx context.Context, id uuid.UUID, eventType string, now time.Time) (*models.KeyReport, error)
}

// Engine decides whether an inbound report duplicates an existing live
// report and validates renewal transitions. It holds no mutable state;
// every request is independent.
type Engine struct {
	store  Store
	hasher *fingerprint.Hasher
	now    func() time.Time
}

// NewEngine creates an Engine backed by the given store and hasher.
func NewEngine(s Store, h *fingerprint.Hasher) *Engine {
	return &Engine{store: s, hasher: h, now: func() time.Time { return time.Now().UTC() }}
}

// CheckResult is the outcome of a duplicate check. Existing is set only
// when IsDuplicate is true.
type CheckResult struct {
	IsDuplicate bool
	Existing    *models.KeyReport
}

// CheckDuplicate looks up a live report for (visitor, program, key).
// It performs zero writes: creation in the not-duplicate case is a
// separate operation.
func (e *Engine) CheckDuplicate(ctx context.Context, sourceAddr, programSlug, rawKey string) (*CheckResult, error) {
	if e.hasher == nil {
		return nil, ErrFingerprintUnavailable
	}

	visitorHash := e.hasher.Visitor(sourceAddr)
	keyHash := fingerprint.Key(rawKey)

	existing, err := e.store.GetReportByTuple(ctx, visitorHash, programSlug, keyHash)
	if errors.Is(err, store.ErrNotFound) {
		return &CheckResult{IsDuplicate: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	return &CheckResult{IsDuplicate: true, Existing: existing}, nil
}

// Create records a new report for the tuple. A concurrent or repeated
// create for the same tuple returns ErrDuplicate.
func (e *Engine) Create(ctx context.Context, sourceAddr, programSlug, rawKey, eventType string) (*models.KeyReport, error) {
	if e.hasher == nil {
		return nil, ErrFingerprintUnavailable
	}
	if !models.ValidEventType(eventType) {
		return nil, ErrInvalidEventType
	}

	r := &models.KeyReport{
		ID:          uuid.New(),
		ProgramSlug: programSlug,
		KeyHash:     fingerprint.Key(rawKey),
		KeyMask:     fingerprint.Mask(rawKey),
		EventType:   eventType,
		VisitorHash: e.hasher.Visitor(sourceAddr),
		CreatedAt:   e.now(),
	}

	if err := e.store.CreateReport(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicateReport) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create report: %w", err)
	}
	return r, nil
}

// Renew updates the event type of an existing report and refreshes its
// timestamp. The report must belong to the calling visitor: a wrong
// fingerprint and an unknown id both fail with ErrNotFoundOrAccessDenied.
func (e *Engine) Renew(ctx context.Context, sourceAddr string, reportID uuid.UUID, newEventType string) (*models.KeyReport, error) {
	if e.hasher == nil {
		return nil, ErrFingerprintUnavailable
	}
	if !models.ValidEventType(newEventType) {
		return nil, ErrInvalidEventType
	}

	visitorHash := e.hasher.Visitor(sourceAddr)

	if _, err := e.store.GetReportForVisitor(ctx, reportID, visitorHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFoundOrAccessDenied
		}
		return nil, fmt.Errorf("locate report: %w", err)
	}

	updated, err := e.store.UpdateReportEvent(ctx, reportID, newEventType, e.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFoundOrAccessDenied
		}
		return nil, fmt.Errorf("renew report: %w", err)
	}
	return updated, nil
}
