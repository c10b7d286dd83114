package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL,
	phase           TEXT NOT NULL,
	percent         INTEGER NOT NULL DEFAULT 0,
	current_file    TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL DEFAULT '',
	should_navigate BOOLEAN NOT NULL DEFAULT false,
	navigate_target TEXT NOT NULL DEFAULT '',
	succeeded       INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS batch_files (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	idx              INTEGER NOT NULL,
	total            INTEGER NOT NULL,
	name             TEXT NOT NULL,
	path             TEXT NOT NULL DEFAULT '',
	size             BIGINT NOT NULL DEFAULT 0,
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
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_batches_project ON batches(project_id);
CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_batch_files_batch_id ON batch_files(batch_id, idx);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveBatch(ctx context.Context, b *model.UploadBatch) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO batches (id, project_id, phase, percent, current_file, outcome, should_navigate,
			navigate_target, succeeded, failed, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			percent = EXCLUDED.percent,
			current_file = EXCLUDED.current_file,
			outcome = EXCLUDED.outcome,
			should_navigate = EXCLUDED.should_navigate,
			navigate_target = EXCLUDED.navigate_target,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		b.ID, b.ProjectID, string(b.Phase), b.Percent, b.CurrentFileLabel, string(b.Outcome), b.ShouldNavigate,
		b.NavigateTarget, b.Succeeded, b.Failed, b.Error, b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save batch %s", b.ID)
}

func (s *PostgresStore) SaveFile(ctx context.Context, t *model.FileTask) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO batch_files (id, batch_id, idx, total, name, path, size, document_id, job_id, state,
			phase, percent, outcome, analysis_path, fallback_trigger, sections_built, poll_attempts,
			error, qa_error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			job_id = EXCLUDED.job_id,
			state = EXCLUDED.state,
			phase = EXCLUDED.phase,
			percent = EXCLUDED.percent,
			outcome = EXCLUDED.outcome,
			analysis_path = EXCLUDED.analysis_path,
			fallback_trigger = EXCLUDED.fallback_trigger,
			sections_built = EXCLUDED.sections_built,
			poll_attempts = EXCLUDED.poll_attempts,
			error = EXCLUDED.error,
			qa_error = EXCLUDED.qa_error,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		t.ID, t.BatchID, t.Index, t.Total, t.File.Name, t.File.Path, t.File.Size, t.DocumentID, t.JobID, string(t.State),
		string(t.Phase), t.Percent, string(t.Outcome), string(t.Path), string(t.FallbackTrigger), t.SectionsBuilt, t.PollAttempts,
		t.Error, t.QAError, nullTime(t.StartedAt), nullTime(t.FinishedAt),
	)
	return eris.Wrapf(err, "postgres: save file %s", t.ID)
}

const postgresBatchColumns = `id, project_id, phase, percent, current_file, outcome, should_navigate,
	navigate_target, succeeded, failed, error, created_at, updated_at`

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (*model.UploadBatch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresBatchColumns+` FROM batches WHERE id = $1`, batchID)
	b, err := scanPgBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %s", batchID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", batchID)
	}

	files, err := s.ListFiles(ctx, batchID)
	if err != nil {
		return nil, err
	}
	b.Files = files
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.UploadBatch, error) {
	query := `SELECT ` + postgresBatchColumns + ` FROM batches WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, argIdx)
		args = append(args, string(filter.Outcome))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var batches []model.UploadBatch
	for rows.Next() {
		b, err := scanPgBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) ListFiles(ctx context.Context, batchID string) ([]*model.FileTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, batch_id, idx, total, name, path, size, document_id, job_id, state, phase, percent,
			outcome, analysis_path, fallback_trigger, sections_built, poll_attempts, error, qa_error,
			started_at, finished_at
		FROM batch_files WHERE batch_id = $1 ORDER BY idx`, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list files %s", batchID)
	}
	defer rows.Close()

	var files []*model.FileTask
	for rows.Next() {
		var t model.FileTask
		var state, phase, outcome, path, trigger string
		var started, finished *time.Time
		if err := rows.Scan(&t.ID, &t.BatchID, &t.Index, &t.Total, &t.File.Name, &t.File.Path, &t.File.Size,
			&t.DocumentID, &t.JobID, &state, &phase, &t.Percent, &outcome, &path, &trigger,
			&t.SectionsBuilt, &t.PollAttempts, &t.Error, &t.QAError, &started, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan file")
		}
		t.State = model.FileState(state)
		t.Phase = model.Phase(phase)
		t.Outcome = model.Outcome(outcome)
		t.Path = model.AnalysisPath(path)
		t.FallbackTrigger = model.FallbackTrigger(trigger)
		if started != nil {
			t.StartedAt = *started
		}
		if finished != nil {
			t.FinishedAt = *finished
		}
		files = append(files, &t)
	}
	return files, eris.Wrap(rows.Err(), "postgres: list files iterate")
}

func scanPgBatch(row pgx.Row) (*model.UploadBatch, error) {
	var b model.UploadBatch
	var phase, outcome string
	err := row.Scan(&b.ID, &b.ProjectID, &phase, &b.Percent, &b.CurrentFileLabel, &outcome, &b.ShouldNavigate,
		&b.NavigateTarget, &b.Succeeded, &b.Failed, &b.Error, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Phase = model.Phase(phase)
	b.Outcome = model.Outcome(outcome)
	return &b, nil
}
