package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/keydexhq/keydex/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateReport = errors.New("duplicate report for tuple")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Key reports. GetReportForVisitor resolves by (id, visitorHash) and
	// returns ErrNotFound for both a missing id and a fingerprint mismatch,
	// so callers cannot distinguish the two.
	GetReportByTuple(ctx context.Context, visitorHash, programSlug, keyHash string) (*models.KeyReport, error)
	GetReportForVisitor(ctx context.Context, id uuid.UUID, visitorHash string) (*models.KeyReport, error)
	CreateReport(ctx context.Context, report *models.KeyReport) error
	UpdateReportEvent(ctx context.Context, id uuid.UUID, eventType string, now time.Time) (*models.KeyReport, error)

	// Programs and CD keys.
	ListPrograms(ctx context.Context) ([]*models.Program, error)
	GetProgramBySlug(ctx context.Context, slug string) (*models.Program, error)
	ListKeysByProgram(ctx context.Context, programSlug string) ([]*models.CDKey, error)
	CreateKey(ctx context.Context, key *models.CDKey) error
	SetKeyStatus(ctx context.Context, id uuid.UUID, status string) (*models.CDKey, error)

	// Expiry sweep. ListKeysDueForExpiry returns keys whose valid_until is
	// at or before now and whose status is not already expired; each key is
	// then expired independently so one failure cannot abort the batch.
	ListKeysDueForExpiry(ctx context.Context, now time.Time) ([]*models.CDKey, error)
	MarkKeyExpired(ctx context.Context, id uuid.UUID, now time.Time) error

	// Moderation.
	CreateSuggestion(ctx context.Context, s *models.KeySuggestion) error
	ListSuggestions(ctx context.Context, status string) ([]*models.KeySuggestion, error)
	GetSuggestion(ctx context.Context, id uuid.UUID) (*models.KeySuggestion, error)
	ReviewSuggestion(ctx context.Context, id uuid.UUID, status string, now time.Time) (*models.KeySuggestion, error)

	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, unreadOnly bool) ([]*models.Message, error)
	MarkMessageRead(ctx context.Context, id uuid.UUID) error

	// Admin users.
	GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error)

	// Analytics counters, incremented in batches by the aggregator.
	UpsertAnalyticsCounts(ctx context.Context, counts []models.AnalyticsCount) error
	ListAnalyticsCounts(ctx context.Context) ([]*models.AnalyticsCount, error)
}
