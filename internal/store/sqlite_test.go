package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfp-ingest/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var baseTime = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)

func testBatch(id, project string, created time.Time) *model.UploadBatch {
	return &model.UploadBatch{
		ID:        id,
		ProjectID: project,
		Phase:     model.PhaseUploading,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func testFile(batchID string, idx, total int) *model.FileTask {
	return &model.FileTask{
		ID:      fmt.Sprintf("%s-f%d", batchID, idx),
		BatchID: batchID,
		Index:   idx,
		Total:   total,
		File:    model.FileRef{Name: "rfp.pdf", Path: "/tmp/rfp.pdf", Size: 2048},
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_SaveAndGetBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b := testBatch("b1", "proj-1", baseTime)
	require.NoError(t, st.SaveBatch(ctx, b))
	f0, f1 := testFile("b1", 0, 2), testFile("b1", 1, 2)
	require.NoError(t, st.SaveFile(ctx, f1))
	require.NoError(t, st.SaveFile(ctx, f0))

	got, err := st.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Equal(t, model.PhaseUploading, got.Phase)
	assert.True(t, baseTime.Equal(got.CreatedAt))
	require.Len(t, got.Files, 2)
	assert.Equal(t, 0, got.Files[0].Index)
	assert.Equal(t, 1, got.Files[1].Index)
	assert.Equal(t, "rfp.pdf", got.Files[0].File.Name)
	assert.Equal(t, int64(2048), got.Files[0].File.Size)
	assert.True(t, got.Files[0].StartedAt.IsZero())
}

func TestSQLite_SaveBatchUpserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b := testBatch("b1", "proj-1", baseTime)
	require.NoError(t, st.SaveBatch(ctx, b))

	b.Phase = model.PhaseComplete
	b.Percent = 100
	b.Outcome = model.OutcomeComplete
	b.ShouldNavigate = true
	b.NavigateTarget = "/projects/proj-1/proposal"
	b.Succeeded = 2
	b.Failed = 1
	b.UpdatedAt = baseTime.Add(time.Minute)
	require.NoError(t, st.SaveBatch(ctx, b))

	got, err := st.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, got.Phase)
	assert.Equal(t, 100, got.Percent)
	assert.Equal(t, model.OutcomeComplete, got.Outcome)
	assert.True(t, got.ShouldNavigate)
	assert.Equal(t, "/projects/proj-1/proposal", got.NavigateTarget)
	assert.Equal(t, 2, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.True(t, baseTime.Equal(got.CreatedAt))
	assert.True(t, baseTime.Add(time.Minute).Equal(got.UpdatedAt))
}

func TestSQLite_SaveFileUpserts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveBatch(ctx, testBatch("b1", "proj-1", baseTime)))

	f := testFile("b1", 0, 1)
	require.NoError(t, st.SaveFile(ctx, f))

	f.DocumentID = "doc-1"
	f.JobID = "job-1"
	f.State = model.FileStateDone
	f.Phase = model.PhaseBuildingSections
	f.Percent = 90
	f.Outcome = model.OutcomeSuccess
	f.Path = model.PathFallback
	f.FallbackTrigger = model.TriggerTimeout
	f.SectionsBuilt = 4
	f.PollAttempts = 180
	f.QAError = "qa down"
	f.StartedAt = baseTime
	f.FinishedAt = baseTime.Add(3 * time.Minute)
	require.NoError(t, st.SaveFile(ctx, f))

	files, err := st.ListFiles(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	got := files[0]
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, model.FileStateDone, got.State)
	assert.Equal(t, model.OutcomeSuccess, got.Outcome)
	assert.Equal(t, model.PathFallback, got.Path)
	assert.Equal(t, model.TriggerTimeout, got.FallbackTrigger)
	assert.Equal(t, 4, got.SectionsBuilt)
	assert.Equal(t, 180, got.PollAttempts)
	assert.Equal(t, "qa down", got.QAError)
	assert.True(t, baseTime.Equal(got.StartedAt))
	assert.True(t, baseTime.Add(3*time.Minute).Equal(got.FinishedAt))
}

func TestSQLite_SaveFileRequiresBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.SaveFile(context.Background(), testFile("missing", 0, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save file")
}

func TestSQLite_GetBatchNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetBatch(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListBatches(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, p := range []string{"proj-1", "proj-2", "proj-1", "proj-1"} {
		b := testBatch(fmt.Sprintf("b%d", i), p, baseTime.Add(time.Duration(i)*time.Hour))
		if i == 3 {
			b.Outcome = model.OutcomeError
		}
		require.NoError(t, st.SaveBatch(ctx, b))
	}

	tests := []struct {
		name   string
		filter BatchFilter
		want   []string
	}{
		{"all newest first", BatchFilter{}, []string{"b3", "b2", "b1", "b0"}},
		{"by project", BatchFilter{ProjectID: "proj-1"}, []string{"b3", "b2", "b0"}},
		{"by outcome", BatchFilter{Outcome: model.OutcomeError}, []string{"b3"}},
		{"limit", BatchFilter{Limit: 2}, []string{"b3", "b2"}},
		{"offset", BatchFilter{Limit: 2, Offset: 2}, []string{"b1", "b0"}},
		{"created after", BatchFilter{CreatedAfter: baseTime.Add(2 * time.Hour)}, []string{"b3", "b2"}},
		{"no match", BatchFilter{ProjectID: "proj-9"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.ListBatches(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, b := range got {
				assert.Nil(t, b.Files)
				ids = append(ids, b.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
