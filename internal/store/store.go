package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// ErrNotFound is returned when a batch does not exist.
var ErrNotFound = eris.New("store: not found")

const defaultListLimit = 100

// BatchFilter specifies criteria for listing batches.
type BatchFilter struct {
	ProjectID    string        `json:"project_id,omitempty"`
	Outcome      model.Outcome `json:"outcome,omitempty"`
	CreatedAfter time.Time     `json:"created_after,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	Offset       int           `json:"offset,omitempty"`
}

func (f BatchFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store persists upload batches and their file tasks.
type Store interface {
	// Batches
	SaveBatch(ctx context.Context, b *model.UploadBatch) error
	GetBatch(ctx context.Context, batchID string) (*model.UploadBatch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.UploadBatch, error)

	// Files
	SaveFile(ctx context.Context, t *model.FileTask) error
	ListFiles(ctx context.Context, batchID string) ([]*model.FileTask, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
