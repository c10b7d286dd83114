package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var batchColumns = []string{"id", "project_id", "phase", "percent", "current_file", "outcome", "should_navigate",
	"navigate_target", "succeeded", "failed", "error", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS batches`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBatch_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()
	b := &model.UploadBatch{ID: "b1", ProjectID: "proj-1", Phase: model.PhaseParsing, Percent: 10, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`(?s)INSERT INTO batches .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("b1", "proj-1", "parsing", 10, "", "", false, "", 0, 0, "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveBatch(context.Background(), b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveFile_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	f := &model.FileTask{
		ID: "f1", BatchID: "b1", Index: 0, Total: 1,
		File:  model.FileRef{Name: "rfp.pdf", Path: "/tmp/rfp.pdf", Size: 10},
		State: model.FileStateDone, Outcome: model.OutcomeSuccess, Path: model.PathAsync,
	}

	mock.ExpectExec(`(?s)INSERT INTO batch_files .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("f1", "b1", 0, 1, "rfp.pdf", "/tmp/rfp.pdf", int64(10), "", "", "done",
			"", 0, "success", "async", "", 0, 0, "", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveFile(context.Background(), f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBatch_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO batches`).WillReturnError(assert.AnError)

	err := s.SaveBatch(context.Background(), &model.UploadBatch{ID: "b1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: save batch b1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT id, project_id, .* FROM batches WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBatch(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatch_NoFiles(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`FROM batches WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows(batchColumns).
			AddRow("b1", "proj-1", "complete", 100, "", "complete", true, "/projects/proj-1/proposal", 1, 0, "", now, now))
	mock.ExpectQuery(`FROM batch_files WHERE batch_id = \$1 ORDER BY idx`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	b, err := s.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, b.Phase)
	assert.Equal(t, model.OutcomeComplete, b.Outcome)
	assert.True(t, b.ShouldNavigate)
	assert.Equal(t, 1, b.Succeeded)
	assert.Empty(t, b.Files)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBatches_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE true AND project_id = \$1 AND outcome = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("proj-1", "error", 10, 20).
		WillReturnRows(pgxmock.NewRows(batchColumns).
			AddRow("b1", "proj-1", "error", 40, "", "error", false, "", 0, 1, "batch aborted", now, now).
			AddRow("b2", "proj-1", "error", 10, "", "error", false, "", 0, 0, "batch aborted", now, now))

	got, err := s.ListBatches(context.Background(), BatchFilter{ProjectID: "proj-1", Outcome: model.OutcomeError, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, model.PhaseError, got[1].Phase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBatches_CreatedAfter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE true AND created_at >= \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(cutoff, 100).
		WillReturnRows(pgxmock.NewRows(batchColumns))

	got, err := s.ListBatches(context.Background(), BatchFilter{CreatedAfter: cutoff})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBatches_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(batchColumns))

	got, err := s.ListBatches(context.Background(), BatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
