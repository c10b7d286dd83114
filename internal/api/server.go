// Package api serves the HTTP interface for starting and watching ingest
// batches.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/model"
	"github.com/sells-group/rfp-ingest/internal/obs"
	"github.com/sells-group/rfp-ingest/internal/store"
)

const (
	uploadField       = "files"
	defaultMaxUpload  = 50 << 20
	keepAliveInterval = 15 * time.Second
)

// Runner creates and processes batches. *ingest.Ingestor satisfies it.
type Runner interface {
	NewBatch(projectID string, files []model.FileRef) *model.UploadBatch
	Process(ctx context.Context, b *model.UploadBatch) error
}

// Config configures a Server.
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	AllowedOrigins []string
}

// Server handles the HTTP API. Batches started through it run on background
// goroutines bound to the server's base context.
type Server struct {
	cfg    Config
	runner Runner
	store  store.Store
	broker *Broker

	ctx context.Context
	wg  sync.WaitGroup
}

// NewServer creates a Server. ctx bounds every background batch.
func NewServer(ctx context.Context, cfg Config, runner Runner, st store.Store, broker *Broker) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{cfg: cfg, runner: runner, store: st, broker: broker, ctx: ctx}
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(obs.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", obs.Handler())
	r.Post("/projects/{projectID}/uploads", s.handleUpload)
	r.Get("/batches", s.handleListBatches)
	r.Get("/batches/{batchID}", s.handleGetBatch)
	r.Get("/batches/{batchID}/events", s.handleEvents)
	return r
}

// Wait blocks until every background batch has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at least one %q part is required", uploadField))
		return
	}

	dir, err := os.MkdirTemp(s.cfg.UploadDir, "batch-")
	if err != nil {
		zap.L().Error("api: create upload dir", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not stage upload")
		return
	}

	files := make([]model.FileRef, 0, len(headers))
	for i, fh := range headers {
		ref, err := stageFile(dir, i, fh)
		if err != nil {
			os.RemoveAll(dir) //nolint:errcheck
			zap.L().Error("api: stage file", zap.String("file", fh.Filename), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not stage upload")
			return
		}
		files = append(files, ref)
	}

	b := s.runner.NewBatch(projectID, files)
	if err := s.saveNewBatch(r.Context(), b); err != nil {
		os.RemoveAll(dir) //nolint:errcheck
		zap.L().Error("api: save new batch", zap.String("batch_id", b.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not record batch")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer os.RemoveAll(dir) //nolint:errcheck
		if err := s.runner.Process(s.ctx, b); err != nil {
			zap.L().Warn("api: batch ended in error", zap.String("batch_id", b.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":   b.ID,
		"project_id": projectID,
		"files":      len(files),
	})
}

// saveNewBatch records b and its files before the batch ID is handed out.
func (s *Server) saveNewBatch(ctx context.Context, b *model.UploadBatch) error {
	snap := *b
	snap.Files = nil
	if err := s.store.SaveBatch(ctx, &snap); err != nil {
		return err
	}
	for _, t := range b.Files {
		if err := s.store.SaveFile(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// stageFile copies one uploaded part to dir. The index prefix keeps two parts
// with the same name apart.
func stageFile(dir string, i int, fh *multipart.FileHeader) (model.FileRef, error) {
	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}

	src, err := fh.Open()
	if err != nil {
		return model.FileRef{}, eris.Wrap(err, "open part")
	}
	defer src.Close() //nolint:errcheck

	path := filepath.Join(dir, fmt.Sprintf("%03d-%s", i, name))
	dst, err := os.Create(path)
	if err != nil {
		return model.FileRef{}, eris.Wrap(err, "create staged file")
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.FileRef{}, eris.Wrap(err, "write staged file")
	}
	return model.FileRef{Name: name, Path: path, Size: n}, nil
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BatchFilter{
		ProjectID: q.Get("project"),
		Outcome:   model.Outcome(q.Get("outcome")),
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
				return
			}
			*dst = n
		}
	}

	batches, err := s.store.ListBatches(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list batches", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list batches")
		return
	}
	if batches == nil {
		batches = []model.UploadBatch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) loadBatch(w http.ResponseWriter, r *http.Request) (*model.UploadBatch, bool) {
	id := chi.URLParam(r, "batchID")
	b, err := s.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("api: get batch", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load batch")
		return nil, false
	}
	return b, true
}

// handleEvents streams a batch's events as Server-Sent Events until the
// terminal event. A batch that already finished gets its stored terminal
// state as the only event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batchID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.broker.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if b, err := s.store.GetBatch(r.Context(), id); err == nil && b.Outcome != model.OutcomePending {
		writeEvent(w, Event{Type: EventTerminal, BatchID: id, Data: model.Terminal{
			BatchID:        b.ID,
			Outcome:        b.Outcome,
			NavigateTarget: b.NavigateTarget,
			Succeeded:      b.Succeeded,
			Failed:         b.Failed,
			Error:          b.Error,
		}})
		flusher.Flush()
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n") //nolint:errcheck
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
			if ev.Type == EventTerminal {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, ev Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		zap.L().Warn("api: marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func snapshot(b *model.UploadBatch) model.UploadBatch {
	c := *b
	c.Files = make([]*model.FileTask, len(b.Files))
	for i, f := range b.Files {
		t := *f
		c.Files[i] = &t
	}
	return c
}
