package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer: the recorder and the API share the handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL,
	phase           TEXT NOT NULL,
	percent         INTEGER NOT NULL DEFAULT 0,
	current_file    TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL DEFAULT '',
	should_navigate INTEGER NOT NULL DEFAULT 0,
	navigate_target TEXT NOT NULL DEFAULT '',
	succeeded       INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS batch_files (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	idx              INTEGER NOT NULL,
	total            INTEGER NOT NULL,
	name             TEXT NOT NULL,
	path             TEXT NOT NULL DEFAULT '',
	size             INTEGER NOT NULL DEFAULT 0,
	document_id      TEXT NOT NULL DEFAULT '',
	job_id           TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL DEFAULT '',
	phase            TEXT NOT NULL DEFAULT '',
	percent          INTEGER NOT NULL DEFAULT 0,
	outcome          TEXT NOT NULL DEFAULT '',
	analysis_path    TEXT NOT NULL DEFAULT '',
	fallback_trigger TEXT NOT NULL DEFAULT '',
	sections_built   INTEGER NOT NULL DEFAULT 0,
	poll_attempts    INTEGER NOT NULL DEFAULT 0,
	error            TEXT NOT NULL DEFAULT '',
	qa_error         TEXT NOT NULL DEFAULT '',
	started_at       DATETIME,
	finished_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_batches_project ON batches(project_id);
CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at);
CREATE INDEX IF NOT EXISTS idx_batch_files_batch_id ON batch_files(batch_id, idx);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, b *model.UploadBatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, project_id, phase, percent, current_file, outcome, should_navigate,
			navigate_target, succeeded, failed, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			phase = excluded.phase,
			percent = excluded.percent,
			current_file = excluded.current_file,
			outcome = excluded.outcome,
			should_navigate = excluded.should_navigate,
			navigate_target = excluded.navigate_target,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		b.ID, b.ProjectID, string(b.Phase), b.Percent, b.CurrentFileLabel, string(b.Outcome), b.ShouldNavigate,
		b.NavigateTarget, b.Succeeded, b.Failed, b.Error, b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save batch %s", b.ID)
}

func (s *SQLiteStore) SaveFile(ctx context.Context, t *model.FileTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_files (id, batch_id, idx, total, name, path, size, document_id, job_id, state,
			phase, percent, outcome, analysis_path, fallback_trigger, sections_built, poll_attempts,
			error, qa_error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			document_id = excluded.document_id,
			job_id = excluded.job_id,
			state = excluded.state,
			phase = excluded.phase,
			percent = excluded.percent,
			outcome = excluded.outcome,
			analysis_path = excluded.analysis_path,
			fallback_trigger = excluded.fallback_trigger,
			sections_built = excluded.sections_built,
			poll_attempts = excluded.poll_attempts,
			error = excluded.error,
			qa_error = excluded.qa_error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		t.ID, t.BatchID, t.Index, t.Total, t.File.Name, t.File.Path, t.File.Size, t.DocumentID, t.JobID, string(t.State),
		string(t.Phase), t.Percent, string(t.Outcome), string(t.Path), string(t.FallbackTrigger), t.SectionsBuilt, t.PollAttempts,
		t.Error, t.QAError, nullTime(t.StartedAt), nullTime(t.FinishedAt),
	)
	return eris.Wrapf(err, "sqlite: save file %s", t.ID)
}

const sqliteBatchColumns = `id, project_id, phase, percent, current_file, outcome, should_navigate,
	navigate_target, succeeded, failed, error, created_at, updated_at`

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*model.UploadBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteBatchColumns+` FROM batches WHERE id = ?`, batchID)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %s", batchID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", batchID)
	}

	files, err := s.ListFiles(ctx, batchID)
	if err != nil {
		return nil, err
	}
	b.Files = files
	return b, nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.UploadBatch, error) {
	query := `SELECT ` + sqliteBatchColumns + ` FROM batches WHERE 1=1`
	var args []any

	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close() //nolint:errcheck

	var batches []model.UploadBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) ListFiles(ctx context.Context, batchID string) ([]*model.FileTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, idx, total, name, path, size, document_id, job_id, state, phase, percent,
			outcome, analysis_path, fallback_trigger, sections_built, poll_attempts, error, qa_error,
			started_at, finished_at
		FROM batch_files WHERE batch_id = ? ORDER BY idx`, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list files %s", batchID)
	}
	defer rows.Close() //nolint:errcheck

	var files []*model.FileTask
	for rows.Next() {
		var t model.FileTask
		var started, finished sql.NullTime
		if err := rows.Scan(&t.ID, &t.BatchID, &t.Index, &t.Total, &t.File.Name, &t.File.Path, &t.File.Size,
			&t.DocumentID, &t.JobID, &t.State, &t.Phase, &t.Percent, &t.Outcome, &t.Path, &t.FallbackTrigger,
			&t.SectionsBuilt, &t.PollAttempts, &t.Error, &t.QAError, &started, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan file")
		}
		t.StartedAt = started.Time
		t.FinishedAt = finished.Time
		files = append(files, &t)
	}
	return files, eris.Wrap(rows.Err(), "sqlite: list files iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*model.UploadBatch, error) {
	var b model.UploadBatch
	var created, updated time.Time
	err := row.Scan(&b.ID, &b.ProjectID, &b.Phase, &b.Percent, &b.CurrentFileLabel, &b.Outcome, &b.ShouldNavigate,
		&b.NavigateTarget, &b.Succeeded, &b.Failed, &b.Error, &created, &updated)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = created
	b.UpdatedAt = updated
	return &b, nil
}
