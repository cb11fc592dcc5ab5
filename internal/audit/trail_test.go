package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpm/internal/db"
	"dpm/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strPtr(s string) *string { return &s }

type failingStore struct{}

func (failingStore) Insert(context.Context, domain.AuditRecord) error {
	return errors.New("backend down")
}

func (failingStore) Read(context.Context, int, domain.AuditFilter) ([]domain.AuditRecord, error) {
	return nil, errors.New("backend down")
}

type recordingStore struct {
	records []domain.AuditRecord
}

func (s *recordingStore) Insert(_ context.Context, rec domain.AuditRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingStore) Read(_ context.Context, limit int, _ domain.AuditFilter) ([]domain.AuditRecord, error) {
	if len(s.records) > limit {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func TestTrailAppendAndReadPrimary(t *testing.T) {
	sqlDB := db.OpenTestSQLite(t)
	trail := NewTrail(NewSQLStore(sqlDB), nil, testLogger())

	ctx := context.Background()
	actx := domain.AuditContext{
		RunID:    "sync_20260115T093000Z_ab12",
		Admin:    "ops@example.com",
		FilePath: "batch.csv",
	}

	trail.Append(ctx, actx.WithRow("1", map[string]string{"userName": "a@example.com"}), domain.AuditEntry{
		Action:        "CREATE_USER",
		PrincipalType: "USER",
		Identifier:    "a@example.com",
		Status:        domain.AuditSuccess,
		ResponseCode:  201,
		ResponseBody:  map[string]string{"id": "u-1"},
	})
	trail.Append(ctx, actx.WithRow("2", nil), domain.AuditEntry{
		Action:        "CREATE_USER",
		PrincipalType: "USER",
		Identifier:    "b@example.com",
		Status:        domain.AuditFailed,
		Details:       "missing email",
	})

	recs, err := trail.Read(ctx, 10, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "b@example.com", recs[0].PrincipalIdentifier)
	assert.Equal(t, "a@example.com", recs[1].PrincipalIdentifier)

	assert.Equal(t, "sync_20260115T093000Z_ab12", recs[1].RunID)
	assert.Equal(t, "ops@example.com", recs[1].Admin)
	assert.Equal(t, "1", recs[1].RowID)
	assert.Equal(t, "201", recs[1].ResponseCode)
	assert.JSONEq(t, `{"userName":"a@example.com"}`, recs[1].RequestPayload)
	assert.JSONEq(t, `{"id":"u-1"}`, recs[1].ResponseBody)

	assert.Empty(t, recs[0].ResponseCode)
	assert.Empty(t, recs[0].RequestPayload)
}

func TestTrailReadFilters(t *testing.T) {
	sqlDB := db.OpenTestSQLite(t)
	trail := NewTrail(NewSQLStore(sqlDB), nil, testLogger())

	ctx := context.Background()
	actx := domain.AuditContext{RunID: "run-a", Admin: "ops@example.com"}
	trail.Append(ctx, actx, domain.AuditEntry{Action: "CREATE_USER", PrincipalType: "USER", Identifier: "a@example.com", Status: domain.AuditSuccess})
	trail.Append(ctx, actx, domain.AuditEntry{Action: "CREATE_GROUP", PrincipalType: "GROUP", Identifier: "g1", Status: domain.AuditFailed})
	trail.Append(ctx, domain.AuditContext{RunID: "run-b"}, domain.AuditEntry{Action: "CREATE_USER", PrincipalType: "USER", Identifier: "c@example.com", Status: domain.AuditSkipped})

	recs, err := trail.Read(ctx, 10, domain.AuditFilter{RunID: strPtr("run-a")})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = trail.Read(ctx, 10, domain.AuditFilter{Action: strPtr("CREATE_USER"), Status: strPtr(domain.AuditSkipped)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "c@example.com", recs[0].PrincipalIdentifier)

	recs, err = trail.Read(ctx, 1, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestTrailFallbackOnPrimaryFailure(t *testing.T) {
	fallback := &recordingStore{}
	trail := NewTrail(failingStore{}, fallback, testLogger())

	trail.Append(context.Background(), domain.AuditContext{RunID: "run-a"}, domain.AuditEntry{
		Action: "DELETE_USER", Identifier: "a@example.com", Status: domain.AuditSuccess,
	})

	// Exactly one record lands in the fallback, none duplicated.
	require.Len(t, fallback.records, 1)
	assert.Equal(t, "run-a", fallback.records[0].RunID)
	assert.Equal(t, "DELETE_USER", fallback.records[0].Action)
}

func TestTrailPrimaryFailureNoFallbackLogsDrop(t *testing.T) {
	var buf bytes.Buffer
	trail := NewTrail(failingStore{}, nil, slog.New(slog.NewTextHandler(&buf, nil)))

	trail.Append(context.Background(), domain.AuditContext{}, domain.AuditEntry{
		Action: "CREATE_USER", Identifier: "a@example.com", Status: domain.AuditSuccess,
	})

	// The record is gone; the log must say so, not claim a fallback ran.
	assert.Contains(t, buf.String(), "audit record dropped")
	assert.NotContains(t, buf.String(), "using fallback")
}

func TestTrailPrimarySuccessSkipsFallback(t *testing.T) {
	primary := &recordingStore{}
	fallback := &recordingStore{}
	trail := NewTrail(primary, fallback, testLogger())

	trail.Append(context.Background(), domain.AuditContext{}, domain.AuditEntry{
		Action: "CREATE_USER", Status: domain.AuditSuccess,
	})

	assert.Len(t, primary.records, 1)
	assert.Empty(t, fallback.records)
}

func TestTrailReadBothBackendsDown(t *testing.T) {
	trail := NewTrail(failingStore{}, failingStore{}, testLogger())

	recs, err := trail.Read(context.Background(), 10, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTrailExplicitFieldsWinOverContext(t *testing.T) {
	primary := &recordingStore{}
	trail := NewTrail(primary, nil, testLogger())

	actx := domain.AuditContext{
		RequestPayload: map[string]string{"from": "context"},
		ResponseCode:   500,
		ResponseBody:   "context body",
	}
	trail.Append(context.Background(), actx, domain.AuditEntry{
		Action:         "UPDATE_USER",
		Status:         domain.AuditSuccess,
		RequestPayload: map[string]string{"from": "entry"},
		ResponseCode:   200,
		ResponseBody:   "entry body",
	})

	require.Len(t, primary.records, 1)
	rec := primary.records[0]
	assert.JSONEq(t, `{"from":"entry"}`, rec.RequestPayload)
	assert.Equal(t, "200", rec.ResponseCode)
	assert.Equal(t, "entry body", rec.ResponseBody)
}

func TestTrailContextFillsAbsentFields(t *testing.T) {
	primary := &recordingStore{}
	trail := NewTrail(primary, nil, testLogger())

	actx := domain.AuditContext{
		RequestPayload: map[string]string{"from": "context"},
		ResponseCode:   404,
	}
	trail.Append(context.Background(), actx, domain.AuditEntry{
		Action: "DELETE_USER",
		Status: domain.AuditNotFound,
	})

	require.Len(t, primary.records, 1)
	assert.JSONEq(t, `{"from":"context"}`, primary.records[0].RequestPayload)
	assert.Equal(t, "404", primary.records[0].ResponseCode)
}

func TestFileStoreAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "fallback.csv")
	store := NewFileStore(path)
	ctx := context.Background()

	base := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	for i, id := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		err := store.Insert(ctx, domain.AuditRecord{
			RunID:               "run-a",
			TS:                  base.Add(time.Duration(i) * time.Second),
			Action:              "CREATE_USER",
			PrincipalType:       "USER",
			PrincipalIdentifier: id,
			Status:              domain.AuditSuccess,
			Details:             "created, with a comma",
		})
		require.NoError(t, err)
	}

	// Header must appear exactly once even across multiple appends.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "principal_identifier"))

	recs, err := store.Read(ctx, 2, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c@example.com", recs[0].PrincipalIdentifier)
	assert.Equal(t, "b@example.com", recs[1].PrincipalIdentifier)
	assert.Equal(t, "created, with a comma", recs[0].Details)
}

func TestFileStoreReadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.csv"))

	recs, err := store.Read(context.Background(), 10, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLStorePurgeOlderThan(t *testing.T) {
	sqlDB := db.OpenTestSQLite(t)
	store := NewSQLStore(sqlDB)
	ctx := context.Background()

	old := domain.AuditRecord{
		TS:     time.Now().UTC().AddDate(0, 0, -100),
		Action: "CREATE_USER",
		Status: domain.AuditSuccess,
	}
	fresh := domain.AuditRecord{
		TS:     time.Now().UTC(),
		Action: "CREATE_USER",
		Status: domain.AuditSuccess,
	}
	require.NoError(t, store.Insert(ctx, old))
	require.NoError(t, store.Insert(ctx, fresh))

	purged, err := store.PurgeOlderThan(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	recs, err := store.Read(ctx, 10, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
