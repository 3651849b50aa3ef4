package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/db"
	"github.com/sells-group/client-analyzer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
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

	maxConns := int32(10)
	minConns := int32(2)
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
CREATE TABLE IF NOT EXISTS uploads (
	id                TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	total_rows        INTEGER NOT NULL DEFAULT 0,
	rejected_rows     INTEGER NOT NULL DEFAULT 0,
	processed_rows    INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uploads_status_check CHECK (status IN ('pending', 'processing', 'completed', 'failed'))
);

CREATE TABLE IF NOT EXISTS staged_rows (
	upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
	row_index INTEGER NOT NULL,
	record    JSONB NOT NULL,
	PRIMARY KEY (upload_id, row_index)
);

CREATE TABLE IF NOT EXISTS row_errors (
	upload_id  TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
	row_number INTEGER NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id                      TEXT PRIMARY KEY,
	upload_id               TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
	row_index               INTEGER NOT NULL,
	name                    TEXT NOT NULL,
	phone                   TEXT NOT NULL DEFAULT '',
	business_category       TEXT NOT NULL,
	location                TEXT NOT NULL,
	rating                  DOUBLE PRECISION,
	review_count            INTEGER,
	transaction_history     TEXT NOT NULL DEFAULT '',
	email                   TEXT NOT NULL DEFAULT '',
	website                 TEXT NOT NULL DEFAULT '',
	potential_score         INTEGER NOT NULL,
	segmentation            TEXT NOT NULL,
	priority                TEXT NOT NULL,
	recommendation_category TEXT NOT NULL,
	UNIQUE (upload_id, row_index)
);

CREATE TABLE IF NOT EXISTS clients (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	phone                   TEXT NOT NULL DEFAULT '',
	business_category       TEXT NOT NULL,
	location                TEXT NOT NULL,
	rating                  DOUBLE PRECISION,
	review_count            INTEGER,
	transaction_history     TEXT NOT NULL DEFAULT '',
	email                   TEXT NOT NULL DEFAULT '',
	website                 TEXT NOT NULL DEFAULT '',
	potential_score         INTEGER NOT NULL,
	segmentation            TEXT NOT NULL,
	priority                TEXT NOT NULL,
	recommendation_category TEXT NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_row_errors_upload_id ON row_errors(upload_id);
CREATE INDEX IF NOT EXISTS idx_results_upload_id ON results(upload_id);
CREATE INDEX IF NOT EXISTS idx_clients_created_at ON clients(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return apperrors.Storage("ping", err)
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

// --- Uploads ---

func (s *PostgresStore) CreateUpload(ctx context.Context, filename string, rows []model.StagedRow, rowErrors []model.RowError) (*model.Upload, error) {
	now := time.Now().UTC()
	u := &model.Upload{
		ID:               uuid.New().String(),
		OriginalFilename: filename,
		Status:           model.UploadStatusPending,
		TotalRows:        len(rows),
		RejectedRows:     len(rowErrors),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	staged := make([][]any, 0, len(rows))
	for _, r := range rows {
		recordJSON, err := json.Marshal(r.Record)
		if err != nil {
			return nil, apperrors.Storage("marshal staged row", err)
		}
		staged = append(staged, []any{u.ID, r.Index, recordJSON})
	}
	errRows := make([][]any, 0, len(rowErrors))
	for _, re := range rowErrors {
		errRows = append(errRows, []any{u.ID, re.Row, re.Field, re.Value, re.Reason})
	}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO uploads (id, original_filename, status, total_rows, rejected_rows, processed_rows, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
			u.ID, u.OriginalFilename, string(u.Status), u.TotalRows, u.RejectedRows, now, now,
		); err != nil {
			return eris.Wrap(err, "postgres: insert upload")
		}
		if _, err := db.CopyFrom(ctx, tx, "staged_rows", []string{"upload_id", "row_index", "record"}, staged); err != nil {
			return err
		}
		_, err := db.CopyFrom(ctx, tx, "row_errors", []string{"upload_id", "row_number", "field", "value", "reason"}, errRows)
		return err
	})
	if err != nil {
		return nil, apperrors.Storage("create upload", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUpload(ctx context.Context, id string) (*model.Upload, error) {
	return getUploadPG(ctx, s.pool, id, false)
}

func getUploadPG(ctx context.Context, q db.Querier, id string, forUpdate bool) (*model.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	u, err := scanUpload(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("upload", id)
	}
	if err != nil {
		return nil, apperrors.Storage("get upload", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUploads(ctx context.Context, filter UploadFilter) ([]model.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Storage("list uploads", err)
	}
	defer rows.Close()

	uploads := []model.Upload{}
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, apperrors.Storage("scan upload", err)
		}
		uploads = append(uploads, *u)
	}
	return uploads, apperrors.Storage("list uploads iterate", rows.Err())
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status model.UploadStatus) error {
	from, ok := model.TransitionSource(status)
	if !ok {
		return transitionFailurePG(ctx, s.pool, id, status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE uploads SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(status), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return apperrors.Storage("set status", err)
	}
	if tag.RowsAffected() == 0 {
		return transitionFailurePG(ctx, s.pool, id, status)
	}
	return nil
}

func transitionFailurePG(ctx context.Context, q db.Querier, id string, to model.UploadStatus) error {
	u, err := getUploadPG(ctx, q, id, false)
	if err != nil {
		return err
	}
	return apperrors.InvalidTransition(id, string(u.Status), string(to))
}

func (s *PostgresStore) DeleteUpload(ctx context.Context, id string) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, q := range []string{
			`DELETE FROM results WHERE upload_id = $1`,
			`DELETE FROM staged_rows WHERE upload_id = $1`,
			`DELETE FROM row_errors WHERE upload_id = $1`,
		} {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return eris.Wrapf(err, "postgres: %s", q)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
		if err != nil {
			return eris.Wrap(err, "postgres: delete upload")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NotFound("upload", id)
		}
		return nil
	})
	return apperrors.Storage("delete upload", err)
}

// --- Staged rows and row errors ---

func (s *PostgresStore) StagedRows(ctx context.Context, uploadID string) ([]model.StagedRow, error) {
	if _, err := s.GetUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT row_index, record FROM staged_rows WHERE upload_id = $1 ORDER BY row_index`, uploadID)
	if err != nil {
		return nil, apperrors.Storage("list staged rows", err)
	}
	defer rows.Close()

	staged := []model.StagedRow{}
	for rows.Next() {
		var r model.StagedRow
		var recordJSON []byte
		if err := rows.Scan(&r.Index, &recordJSON); err != nil {
			return nil, apperrors.Storage("scan staged row", err)
		}
		if err := json.Unmarshal(recordJSON, &r.Record); err != nil {
			return nil, apperrors.Storage("unmarshal staged row", err)
		}
		staged = append(staged, r)
	}
	return staged, apperrors.Storage("list staged rows iterate", rows.Err())
}

func (s *PostgresStore) ListRowErrors(ctx context.Context, uploadID string) ([]model.RowError, error) {
	if _, err := s.GetUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT row_number, field, value, reason FROM row_errors WHERE upload_id = $1 ORDER BY row_number`, uploadID)
	if err != nil {
		return nil, apperrors.Storage("list row errors", err)
	}
	defer rows.Close()

	out := []model.RowError{}
	for rows.Next() {
		var re model.RowError
		if err := rows.Scan(&re.Row, &re.Field, &re.Value, &re.Reason); err != nil {
			return nil, apperrors.Storage("scan row error", err)
		}
		out = append(out, re)
	}
	return out, apperrors.Storage("list row errors iterate", rows.Err())
}

// --- Results ---

func (s *PostgresStore) InsertResults(ctx context.Context, uploadID string, results []model.ResultRow) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		u, err := getUploadPG(ctx, tx, uploadID, true)
		if err != nil {
			return err
		}
		if u.Status != model.UploadStatusProcessing {
			return apperrors.InvalidState(uploadID, string(u.Status), "insert results")
		}
		return copyResults(ctx, tx, uploadID, results)
	})
	return apperrors.Storage("insert results", err)
}

// CompleteUpload updates the upload row first so a concurrent delete either
// waits on its lock or has already removed it, in which case nothing is written.
func (s *PostgresStore) CompleteUpload(ctx context.Context, uploadID string, results []model.ResultRow) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE uploads SET status = $1, processed_rows = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
			string(model.UploadStatusCompleted), len(results), time.Now().UTC(), uploadID, string(model.UploadStatusProcessing),
		)
		if err != nil {
			return eris.Wrap(err, "postgres: complete upload")
		}
		if tag.RowsAffected() == 0 {
			return transitionFailurePG(ctx, tx, uploadID, model.UploadStatusCompleted)
		}
		return copyResults(ctx, tx, uploadID, results)
	})
	return apperrors.Storage("complete upload", err)
}

func copyResults(ctx context.Context, tx pgx.Tx, uploadID string, results []model.ResultRow) error {
	rows := make([][]any, 0, len(results))
	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.UploadID = uploadID
		rows = append(rows, resultArgs(*r))
	}
	_, err := db.CopyFrom(ctx, tx, "results", resultColumns, rows)
	return err
}

func (s *PostgresStore) ListResults(ctx context.Context, uploadID string) ([]model.ResultRow, error) {
	if _, err := s.GetUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumnList+` FROM results WHERE upload_id = $1 ORDER BY row_index`, uploadID)
	if err != nil {
		return nil, apperrors.Storage("list results", err)
	}
	defer rows.Close()

	out := []model.ResultRow{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, apperrors.Storage("scan result", err)
		}
		out = append(out, r)
	}
	return out, apperrors.Storage("list results iterate", rows.Err())
}

// --- Standalone clients ---

func (s *PostgresStore) SaveClient(ctx context.Context, c *model.ScoredClient) error {
	prepareClient(c)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO clients (`+clientColumnList+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		clientArgs(*c)...,
	)
	return apperrors.Storage("save client", err)
}

func (s *PostgresStore) ListClients(ctx context.Context, limit int) ([]model.ScoredClient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+clientColumnList+` FROM clients ORDER BY created_at DESC, id DESC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, apperrors.Storage("list clients", err)
	}
	defer rows.Close()

	out := []model.ScoredClient{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, apperrors.Storage("scan client", err)
		}
		out = append(out, c)
	}
	return out, apperrors.Storage("list clients iterate", rows.Err())
}
