package ingest

import (
	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// Observer receives batch events. Methods are called synchronously from the
// goroutine running the batch, in order, and must not block for long.
type Observer interface {
	OnStart(batch model.UploadBatch)
	OnProgress(p model.Progress)
	OnFileDone(task model.FileTask)
	OnTerminal(t model.Terminal)
}

// Observers fans events out to every observer in order. A panicking observer
// is logged and skipped.
type Observers []Observer

func (o Observers) OnStart(batch model.UploadBatch) {
	for _, obs := range o {
		safeNotify("start", func() { obs.OnStart(batch) })
	}
}

func (o Observers) OnProgress(p model.Progress) {
	for _, obs := range o {
		safeNotify("progress", func() { obs.OnProgress(p) })
	}
}

func (o Observers) OnFileDone(task model.FileTask) {
	for _, obs := range o {
		safeNotify("file_done", func() { obs.OnFileDone(task) })
	}
}

func (o Observers) OnTerminal(t model.Terminal) {
	for _, obs := range o {
		safeNotify("terminal", func() { obs.OnTerminal(t) })
	}
}

func safeNotify(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("observer panicked",
				zap.String("event", event),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Start    func(model.UploadBatch)
	Progress func(model.Progress)
	FileDone func(model.FileTask)
	Terminal func(model.Terminal)
}

func (f ObserverFuncs) OnStart(b model.UploadBatch) {
	if f.Start != nil {
		f.Start(b)
	}
}

func (f ObserverFuncs) OnProgress(p model.Progress) {
	if f.Progress != nil {
		f.Progress(p)
	}
}

func (f ObserverFuncs) OnFileDone(t model.FileTask) {
	if f.FileDone != nil {
		f.FileDone(t)
	}
}

func (f ObserverFuncs) OnTerminal(t model.Terminal) {
	if f.Terminal != nil {
		f.Terminal(t)
	}
}

// LogObserver writes batch events to the global zap logger.
type LogObserver struct{}

func (LogObserver) OnStart(b model.UploadBatch) {
	zap.L().Info("batch started",
		zap.String("batch_id", b.ID),
		zap.String("project_id", b.ProjectID),
		zap.Int("files", len(b.Files)),
	)
}

func (LogObserver) OnProgress(p model.Progress) {
	zap.L().Debug("batch progress",
		zap.String("batch_id", p.BatchID),
		zap.String("phase", string(p.Phase)),
		zap.Int("percent", p.Percent),
		zap.String("file", p.CurrentFileLabel),
	)
}

func (LogObserver) OnFileDone(t model.FileTask) {
	fields := []zap.Field{
		zap.String("batch_id", t.BatchID),
		zap.String("file", t.File.Name),
		zap.String("document_id", t.DocumentID),
		zap.String("job_id", t.JobID),
		zap.String("outcome", string(t.Outcome)),
		zap.String("path", string(t.Path)),
		zap.Int("sections_built", t.SectionsBuilt),
		zap.Duration("duration", t.FinishedAt.Sub(t.StartedAt)),
	}
	if t.Outcome == model.OutcomeFailure {
		zap.L().Error("file failed", append(fields, zap.String("error", t.Error))...)
		return
	}
	zap.L().Info("file complete", fields...)
}

func (LogObserver) OnTerminal(t model.Terminal) {
	zap.L().Info("batch finished",
		zap.String("batch_id", t.BatchID),
		zap.String("outcome", string(t.Outcome)),
		zap.Int("succeeded", t.Succeeded),
		zap.Int("failed", t.Failed),
		zap.String("navigate_target", t.NavigateTarget),
		zap.String("error", t.Error),
	)
}
