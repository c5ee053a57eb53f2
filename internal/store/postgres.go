package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keydexhq/keydex/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
// All caller-supplied values are passed as bound parameters, never
// concatenated into query text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Key Reports ---

const reportColumns = `id, program_slug, key_hash, key_mask, event_type, visitor_hash, created_at`

func scanReport(row pgx.Row) (*models.KeyReport, error) {
	var r models.KeyReport
	err := row.Scan(&r.ID, &r.ProgramSlug, &r.KeyHash, &r.KeyMask, &r.EventType, &r.VisitorHash, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetReportByTuple(ctx context.Context, visitorHash, programSlug, keyHash string) (*models.KeyReport, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM key_reports
		 WHERE visitor_hash = $1 AND program_slug = $2 AND key_hash = $3`,
		visitorHash, programSlug, keyHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report by tuple: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetReportForVisitor(ctx context.Context, id uuid.UUID, visitorHash string) (*models.KeyReport, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM key_reports WHERE id = $1 AND visitor_hash = $2`,
		id, visitorHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report for visitor: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, report *models.KeyReport) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO key_reports (id, program_slug, key_hash, key_mask, event_type, visitor_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.ID, report.ProgramSlug, report.KeyHash, report.KeyMask,
		report.EventType, report.VisitorHash, report.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReport
		}
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateReportEvent(ctx context.Context, id uuid.UUID, eventType string, now time.Time) (*models.KeyReport, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		`UPDATE key_reports SET event_type = $2, created_at = $3
		 WHERE id = $1
		 RETURNING `+reportColumns,
		id, eventType, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update report event: %w", err)
	}
	return r, nil
}

// --- Programs ---

func (s *PostgresStore) ListPrograms(ctx context.Context) ([]*models.Program, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, slug, name, created_at FROM programs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var programs []*models.Program
	for rows.Next() {
		var p models.Program
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, &p)
	}
	return programs, rows.Err()
}

func (s *PostgresStore) GetProgramBySlug(ctx context.Context, slug string) (*models.Program, error) {
	var p models.Program
	err := s.pool.QueryRow(ctx,
		`SELECT id, slug, name, created_at FROM programs WHERE slug = $1`, slug,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get program by slug: %w", err)
	}
	return &p, nil
}

// --- CD Keys ---

const keyColumns = `id, program_slug, key, key_mask, status, version, valid_from, valid_until, notes, created_at, updated_at`

func scanKey(row pgx.Row) (*models.CDKey, error) {
	var k models.CDKey
	err := row.Scan(&k.ID, &k.ProgramSlug, &k.Key, &k.KeyMask, &k.Status, &k.Version,
		&k.ValidFrom, &k.ValidUntil, &k.Notes, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) ListKeysByProgram(ctx context.Context, programSlug string) ([]*models.CDKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM cd_keys WHERE program_slug = $1 ORDER BY created_at DESC`,
		programSlug)
	if err != nil {
		return nil, fmt.Errorf("list keys by program: %w", err)
	}
	defer rows.Close()

	var keys []*models.CDKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) CreateKey(ctx context.Context, key *models.CDKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cd_keys (id, program_slug, key, key_mask, status, version, valid_from, valid_until, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		key.ID, key.ProgramSlug, key.Key, key.KeyMask, key.Status, key.Version,
		key.ValidFrom, key.ValidUntil, key.Notes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetKeyStatus(ctx context.Context, id uuid.UUID, status string) (*models.CDKey, error) {
	k, err := scanKey(s.pool.QueryRow(ctx,
		`UPDATE cd_keys SET status = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+keyColumns,
		id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set key status: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) ListKeysDueForExpiry(ctx context.Context, now time.Time) ([]*models.CDKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM cd_keys
		 WHERE valid_until IS NOT NULL AND valid_until <= $1 AND status <> $2`,
		now, models.KeyStatusExpired)
	if err != nil {
		return nil, fmt.Errorf("list keys due for expiry: %w", err)
	}
	defer rows.Close()

	var keys []*models.CDKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) MarkKeyExpired(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cd_keys SET status = $2, updated_at = $3 WHERE id = $1`,
		id, models.KeyStatusExpired, now)
	if err != nil {
		return fmt.Errorf("mark key expired: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Key Suggestions ---

const suggestionColumns = `id, program_slug, key, notes, status, visitor_hash, created_at, reviewed_at`

func scanSuggestion(row pgx.Row) (*models.KeySuggestion, error) {
	var sg models.KeySuggestion
	err := row.Scan(&sg.ID, &sg.ProgramSlug, &sg.Key, &sg.Notes, &sg.Status,
		&sg.VisitorHash, &sg.CreatedAt, &sg.ReviewedAt)
	if err != nil {
		return nil, err
	}
	return &sg, nil
}

func (s *PostgresStore) CreateSuggestion(ctx context.Context, sg *models.KeySuggestion) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO key_suggestions (id, program_slug, key, notes, status, visitor_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sg.ID, sg.ProgramSlug, sg.Key, sg.Notes, sg.Status, sg.VisitorHash, sg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, status string) ([]*models.KeySuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM key_suggestions ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + suggestionColumns + ` FROM key_suggestions WHERE status = $1 ORDER BY created_at DESC`
		args = append(args, status)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*models.KeySuggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

func (s *PostgresStore) GetSuggestion(ctx context.Context, id uuid.UUID) (*models.KeySuggestion, error) {
	sg, err := scanSuggestion(s.pool.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM key_suggestions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	return sg, nil
}

func (s *PostgresStore) ReviewSuggestion(ctx context.Context, id uuid.UUID, status string, now time.Time) (*models.KeySuggestion, error) {
	sg, err := scanSuggestion(s.pool.QueryRow(ctx,
		`UPDATE key_suggestions SET status = $2, reviewed_at = $3
		 WHERE id = $1 AND status = $4
		 RETURNING `+suggestionColumns,
		id, status, now, models.SuggestionPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("review suggestion: %w", err)
	}
	return sg, nil
}

// --- Messages ---

func (s *PostgresStore) CreateMessage(ctx context.Context, m *models.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, name, email, body, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Name, m.Email, m.Body, m.Read, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, unreadOnly bool) ([]*models.Message, error) {
	query := `SELECT id, name, email, body, read, created_at FROM messages ORDER BY created_at DESC`
	if unreadOnly {
		query = `SELECT id, name, email, body, read, created_at FROM messages WHERE read = FALSE ORDER BY created_at DESC`
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) MarkMessageRead(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Admin Users ---

func (s *PostgresStore) GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var a models.AdminUser
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM admin_users WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin by username: %w", err)
	}
	return &a, nil
}

// --- Analytics ---

// UpsertAnalyticsCounts applies the batch in one transaction. Callers
// retry the whole batch on failure, so a partial commit would double
// count the rows that got through.
func (s *PostgresStore) UpsertAnalyticsCounts(ctx context.Context, counts []models.AnalyticsCount) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin analytics upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range counts {
		_, err := tx.Exec(ctx,
			`INSERT INTO analytics_counts (event, program_slug, social, count, updated_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (event, program_slug, social) DO UPDATE SET
			   count = analytics_counts.count + EXCLUDED.count,
			   updated_at = NOW()`,
			c.Event, c.ProgramSlug, c.Social, c.Count)
		if err != nil {
			return fmt.Errorf("upsert analytics count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit analytics upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnalyticsCounts(ctx context.Context) ([]*models.AnalyticsCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event, program_slug, social, count, updated_at FROM analytics_counts
		 ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("list analytics counts: %w", err)
	}
	defer rows.Close()

	var counts []*models.AnalyticsCount
	for rows.Next() {
		var c models.AnalyticsCount
		if err := rows.Scan(&c.Event, &c.ProgramSlug, &c.Social, &c.Count, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics count: %w", err)
		}
		counts = append(counts, &c)
	}
	return counts, rows.Err()
}

// isUniqueViolation checks if a pgx error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
