package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("keydex_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seedProgram inserts a program row so keys can reference its slug.
func seedProgram(t *testing.T, pool *pgxpool.Pool, slug string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO programs (id, slug, name) VALUES ($1, $2, $3)`,
		uuid.New(), slug, slug)
	require.NoError(t, err)
}

func newReport(program, visitor string) *models.KeyReport {
	return &models.KeyReport{
		ID:          uuid.New(),
		ProgramSlug: program,
		KeyHash:     "hash-" + uuid.NewString(),
		KeyMask:     "ABCD****WXYZ",
		EventType:   models.EventKeyWorking,
		VisitorHash: visitor,
		CreatedAt:   time.Now().UTC(),
	}
}

// --- Key Report Tests ---

func TestReport_CreateAndGetByTuple(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	r := newReport("photoshop", "visitor-a")
	require.NoError(t, s.CreateReport(ctx, r))

	got, err := s.GetReportByTuple(ctx, r.VisitorHash, r.ProgramSlug, r.KeyHash)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, models.EventKeyWorking, got.EventType)

	// Different visitor, same program and key: no match.
	_, err = s.GetReportByTuple(ctx, "visitor-b", r.ProgramSlug, r.KeyHash)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReport_DuplicateTupleRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	r := newReport("photoshop", "visitor-a")
	require.NoError(t, s.CreateReport(ctx, r))

	dup := newReport("photoshop", "visitor-a")
	dup.KeyHash = r.KeyHash
	err := s.CreateReport(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicateReport)
}

func TestReport_GetForVisitor_OwnershipConflated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	r := newReport("photoshop", "visitor-a")
	require.NoError(t, s.CreateReport(ctx, r))

	got, err := s.GetReportForVisitor(ctx, r.ID, "visitor-a")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	// Wrong visitor and unknown id both come back as ErrNotFound.
	_, err = s.GetReportForVisitor(ctx, r.ID, "visitor-b")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetReportForVisitor(ctx, uuid.New(), "visitor-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReport_UpdateEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	r := newReport("photoshop", "visitor-a")
	require.NoError(t, s.CreateReport(ctx, r))

	later := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	updated, err := s.UpdateReportEvent(ctx, r.ID, models.EventKeyExpired, later)
	require.NoError(t, err)
	assert.Equal(t, models.EventKeyExpired, updated.EventType)
	assert.WithinDuration(t, later, updated.CreatedAt, time.Millisecond)
	assert.Equal(t, r.KeyHash, updated.KeyHash)
	assert.Equal(t, r.VisitorHash, updated.VisitorHash)
}

// --- CD Key Tests ---

func newKey(program string, validUntil *time.Time) *models.CDKey {
	now := time.Now().UTC()
	return &models.CDKey{
		ID:          uuid.New(),
		ProgramSlug: program,
		Key:         "ABCD-1234-" + uuid.NewString()[:4],
		KeyMask:     "ABCD****",
		Status:      models.KeyStatusActive,
		ValidUntil:  validUntil,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestKey_ListDueForExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	seedProgram(t, pool, "photoshop")

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := newKey("photoshop", &past)
	notDue := newKey("photoshop", &future)
	noWindow := newKey("photoshop", nil)
	alreadyExpired := newKey("photoshop", &past)
	alreadyExpired.Status = models.KeyStatusExpired

	for _, k := range []*models.CDKey{due, notDue, noWindow, alreadyExpired} {
		require.NoError(t, s.CreateKey(ctx, k))
	}

	keys, err := s.ListKeysDueForExpiry(ctx, now)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, due.ID, keys[0].ID)
}

func TestKey_MarkExpired(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	seedProgram(t, pool, "photoshop")

	past := time.Now().UTC().Add(-time.Hour)
	k := newKey("photoshop", &past)
	require.NoError(t, s.CreateKey(ctx, k))

	require.NoError(t, s.MarkKeyExpired(ctx, k.ID, time.Now().UTC()))

	// Expired keys drop out of the due list.
	keys, err := s.ListKeysDueForExpiry(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, s.MarkKeyExpired(ctx, uuid.New(), time.Now().UTC()), store.ErrNotFound)
}

func TestKey_SetStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	seedProgram(t, pool, "photoshop")

	k := newKey("photoshop", nil)
	require.NoError(t, s.CreateKey(ctx, k))

	updated, err := s.SetKeyStatus(ctx, k.ID, models.KeyStatusLimit)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusLimit, updated.Status)

	_, err = s.SetKeyStatus(ctx, uuid.New(), models.KeyStatusActive)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Program Tests ---

func TestProgram_ListAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	seedProgram(t, pool, "photoshop")
	seedProgram(t, pool, "autocad")

	programs, err := s.ListPrograms(ctx)
	require.NoError(t, err)
	assert.Len(t, programs, 2)

	p, err := s.GetProgramBySlug(ctx, "photoshop")
	require.NoError(t, err)
	assert.Equal(t, "photoshop", p.Slug)

	_, err = s.GetProgramBySlug(ctx, "nonexistent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Suggestion Tests ---

func TestSuggestion_ReviewOnlyOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	sg := &models.KeySuggestion{
		ID:          uuid.New(),
		ProgramSlug: "photoshop",
		Key:         "ABCD-1234-WXYZ",
		Status:      models.SuggestionPending,
		VisitorHash: "visitor-a",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.CreateSuggestion(ctx, sg))

	fetched, err := s.GetSuggestion(ctx, sg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionPending, fetched.Status)

	reviewed, err := s.ReviewSuggestion(ctx, sg.ID, models.SuggestionApproved, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionApproved, reviewed.Status)
	assert.NotNil(t, reviewed.ReviewedAt)

	// Second review finds no pending row.
	_, err = s.ReviewSuggestion(ctx, sg.ID, models.SuggestionRejected, time.Now().UTC())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSuggestion_ListByStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sg := &models.KeySuggestion{
			ID:          uuid.New(),
			ProgramSlug: "photoshop",
			Key:         uuid.NewString(),
			Status:      models.SuggestionPending,
			VisitorHash: "visitor-a",
			CreatedAt:   time.Now().UTC(),
		}
		require.NoError(t, s.CreateSuggestion(ctx, sg))
		if i == 0 {
			_, err := s.ReviewSuggestion(ctx, sg.ID, models.SuggestionRejected, time.Now().UTC())
			require.NoError(t, err)
		}
	}

	pending, err := s.ListSuggestions(ctx, models.SuggestionPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	all, err := s.ListSuggestions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// --- Message Tests ---

func TestMessage_CreateListMarkRead(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	m := &models.Message{
		ID:        uuid.New(),
		Name:      "alex",
		Email:     "alex@example.com",
		Body:      "the photoshop keys all expired",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateMessage(ctx, m))

	unread, err := s.ListMessages(ctx, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, s.MarkMessageRead(ctx, m.ID))

	unread, err = s.ListMessages(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := s.ListMessages(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)
}

// --- Analytics Tests ---

func TestAnalytics_UpsertAccumulates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	batch := []models.AnalyticsCount{
		{Event: models.EventPageView, ProgramSlug: "photoshop", Count: 3},
		{Event: models.EventKeyCopy, ProgramSlug: "photoshop", Count: 1},
	}
	require.NoError(t, s.UpsertAnalyticsCounts(ctx, batch))
	require.NoError(t, s.UpsertAnalyticsCounts(ctx, batch[:1]))

	counts, err := s.ListAnalyticsCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)

	byEvent := map[string]int64{}
	for _, c := range counts {
		byEvent[c.Event] = c.Count
	}
	assert.Equal(t, int64(6), byEvent[models.EventPageView])
	assert.Equal(t, int64(1), byEvent[models.EventKeyCopy])
}

func TestAnalytics_UpsertIsAtomic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	// The second row carries a NUL byte, which Postgres text rejects, so
	// the batch fails after the first row already executed. Nothing may
	// be committed, or the caller's retry would double count row one.
	batch := []models.AnalyticsCount{
		{Event: models.EventPageView, ProgramSlug: "photoshop", Count: 4},
		{Event: "bad\x00event", Count: 1},
	}
	err := s.UpsertAnalyticsCounts(ctx, batch)
	require.Error(t, err)

	counts, err := s.ListAnalyticsCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	// The retried batch, fixed, lands exactly once.
	batch[1].Event = models.EventKeyCopy
	require.NoError(t, s.UpsertAnalyticsCounts(ctx, batch))

	counts, err = s.ListAnalyticsCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	for _, c := range counts {
		if c.Event == models.EventPageView {
			assert.Equal(t, int64(4), c.Count)
		}
	}
}

// --- Admin Tests ---

func TestAdmin_GetByUsername(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		`INSERT INTO admin_users (id, username, password_hash) VALUES ($1, $2, $3)`,
		uuid.New(), "moderator", "$2a$10$notarealhash")
	require.NoError(t, err)

	admin, err := s.GetAdminByUsername(ctx, "moderator")
	require.NoError(t, err)
	assert.Equal(t, "moderator", admin.Username)
	assert.NotEmpty(t, admin.PasswordHash)

	_, err = s.GetAdminByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
