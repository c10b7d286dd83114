package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/model"
)

const defaultWriteTimeout = 5 * time.Second

// Recorder persists batch events to a Store. It satisfies ingest.Observer.
// Writes are best-effort: failures are logged and never reach the batch.
// Progress is written only when the batch phase changes.
type Recorder struct {
	store   Store
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	batches map[string]*model.UploadBatch
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s Store) *Recorder {
	return &Recorder{
		store:   s,
		timeout: defaultWriteTimeout,
		now:     time.Now,
		batches: make(map[string]*model.UploadBatch),
	}
}

func (r *Recorder) OnStart(b model.UploadBatch) {
	snap := b
	snap.Files = nil

	r.mu.Lock()
	r.batches[b.ID] = &snap
	r.mu.Unlock()

	r.write("save batch", b.ID, func(ctx context.Context) error {
		return r.store.SaveBatch(ctx, &snap)
	})
	for _, t := range b.Files {
		task := *t
		r.write("save file", b.ID, func(ctx context.Context) error {
			return r.store.SaveFile(ctx, &task)
		})
	}
}

func (r *Recorder) OnProgress(p model.Progress) {
	r.mu.Lock()
	b, ok := r.batches[p.BatchID]
	if !ok || b.Phase == p.Phase {
		if ok {
			b.Percent = p.Percent
			b.CurrentFileLabel = p.CurrentFileLabel
		}
		r.mu.Unlock()
		return
	}
	b.Phase = p.Phase
	b.Percent = p.Percent
	b.CurrentFileLabel = p.CurrentFileLabel
	b.UpdatedAt = r.now()
	snap := *b
	r.mu.Unlock()

	r.write("save progress", p.BatchID, func(ctx context.Context) error {
		return r.store.SaveBatch(ctx, &snap)
	})
}

// OnFileDone saves the file row and the batch's running success and failure
// counts.
func (r *Recorder) OnFileDone(t model.FileTask) {
	r.write("save file", t.BatchID, func(ctx context.Context) error {
		return r.store.SaveFile(ctx, &t)
	})

	r.mu.Lock()
	b, ok := r.batches[t.BatchID]
	if !ok {
		r.mu.Unlock()
		return
	}
	switch t.Outcome {
	case model.OutcomeSuccess:
		b.Succeeded++
	case model.OutcomeFailure:
		b.Failed++
	}
	b.UpdatedAt = r.now()
	snap := *b
	r.mu.Unlock()

	r.write("save counts", t.BatchID, func(ctx context.Context) error {
		return r.store.SaveBatch(ctx, &snap)
	})
}

func (r *Recorder) OnTerminal(t model.Terminal) {
	r.mu.Lock()
	b, ok := r.batches[t.BatchID]
	delete(r.batches, t.BatchID)
	r.mu.Unlock()
	if !ok {
		zap.L().Warn("recorder: terminal event for unknown batch", zap.String("batch_id", t.BatchID))
		return
	}

	b.Outcome = t.Outcome
	b.NavigateTarget = t.NavigateTarget
	b.ShouldNavigate = t.NavigateTarget != ""
	b.Succeeded = t.Succeeded
	b.Failed = t.Failed
	b.Error = t.Error
	b.UpdatedAt = r.now()
	if t.Outcome == model.OutcomeComplete {
		b.Phase = model.PhaseComplete
		b.Percent = 100
	} else {
		b.Phase = model.PhaseError
	}
	b.CurrentFileLabel = ""

	r.write("save terminal", t.BatchID, func(ctx context.Context) error {
		return r.store.SaveBatch(ctx, b)
	})
}

func (r *Recorder) write(op, batchID string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		zap.L().Warn("recorder: write failed",
			zap.String("op", op),
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
	}
}
