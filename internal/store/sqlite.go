package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// A single connection serializes writers, which keeps check-and-set updates
// and multi-statement transactions free of SQLITE_BUSY upgrades.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS uploads (
	id                TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	total_rows        INTEGER NOT NULL DEFAULT 0,
	rejected_rows     INTEGER NOT NULL DEFAULT 0,
	processed_rows    INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS staged_rows (
	upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
	row_index INTEGER NOT NULL,
	record    TEXT NOT NULL,
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
	rating                  REAL,
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
	rating                  REAL,
	review_count            INTEGER,
	transaction_history     TEXT NOT NULL DEFAULT '',
	email                   TEXT NOT NULL DEFAULT '',
	website                 TEXT NOT NULL DEFAULT '',
	potential_score         INTEGER NOT NULL,
	segmentation            TEXT NOT NULL,
	priority                TEXT NOT NULL,
	recommendation_category TEXT NOT NULL,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
CREATE INDEX IF NOT EXISTS idx_row_errors_upload_id ON row_errors(upload_id);
CREATE INDEX IF NOT EXISTS idx_results_upload_id ON results(upload_id);
CREATE INDEX IF NOT EXISTS idx_clients_created_at ON clients(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return apperrors.Storage("ping", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlQueryer is satisfied by *sql.DB and *sql.Tx.
type sqlQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Uploads ---

func (s *SQLiteStore) CreateUpload(ctx context.Context, filename string, rows []model.StagedRow, rowErrors []model.RowError) (*model.Upload, error) {
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

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO uploads (id, original_filename, status, total_rows, rejected_rows, processed_rows, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			u.ID, u.OriginalFilename, string(u.Status), u.TotalRows, u.RejectedRows, now, now,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert upload")
		}

		stagedStmt, err := tx.PrepareContext(ctx, `INSERT INTO staged_rows (upload_id, row_index, record) VALUES (?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare staged row insert")
		}
		defer stagedStmt.Close()
		for _, r := range rows {
			recordJSON, err := json.Marshal(r.Record)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal staged row")
			}
			if _, err := stagedStmt.ExecContext(ctx, u.ID, r.Index, string(recordJSON)); err != nil {
				return eris.Wrapf(err, "sqlite: insert staged row %d", r.Index)
			}
		}

		errStmt, err := tx.PrepareContext(ctx, `INSERT INTO row_errors (upload_id, row_number, field, value, reason) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare row error insert")
		}
		defer errStmt.Close()
		for _, re := range rowErrors {
			if _, err := errStmt.ExecContext(ctx, u.ID, re.Row, re.Field, re.Value, re.Reason); err != nil {
				return eris.Wrapf(err, "sqlite: insert row error %d", re.Row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("create upload", err)
	}
	return u, nil
}

const uploadColumns = `id, original_filename, status, total_rows, rejected_rows, processed_rows, created_at, updated_at`

func (s *SQLiteStore) GetUpload(ctx context.Context, id string) (*model.Upload, error) {
	return getUploadSQL(ctx, s.db, id)
}

func getUploadSQL(ctx context.Context, q sqlQueryer, id string) (*model.Upload, error) {
	row := q.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("upload", id)
	}
	if err != nil {
		return nil, apperrors.Storage("get upload", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUploads(ctx context.Context, filter UploadFilter) ([]model.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.UploadStatus) error {
	from, ok := model.TransitionSource(status)
	if !ok {
		return transitionFailureSQL(ctx, s.db, id, status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return apperrors.Storage("set status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Storage("set status rows affected", err)
	}
	if n == 0 {
		return transitionFailureSQL(ctx, s.db, id, status)
	}
	return nil
}

// transitionFailureSQL explains why a guarded status update matched no row.
func transitionFailureSQL(ctx context.Context, q sqlQueryer, id string, to model.UploadStatus) error {
	u, err := getUploadSQL(ctx, q, id)
	if err != nil {
		return err
	}
	return apperrors.InvalidTransition(id, string(u.Status), string(to))
}

func (s *SQLiteStore) DeleteUpload(ctx context.Context, id string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM results WHERE upload_id = ?`,
			`DELETE FROM staged_rows WHERE upload_id = ?`,
			`DELETE FROM row_errors WHERE upload_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return eris.Wrapf(err, "sqlite: %s", q)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
		if err != nil {
			return eris.Wrap(err, "sqlite: delete upload")
		}
		return checkRowsAffected(res, "upload", id)
	})
	return apperrors.Storage("delete upload", err)
}

// --- Staged rows and row errors ---

func (s *SQLiteStore) StagedRows(ctx context.Context, uploadID string) ([]model.StagedRow, error) {
	if _, err := s.GetUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, record FROM staged_rows WHERE upload_id = ? ORDER BY row_index`, uploadID)
	if err != nil {
		return nil, apperrors.Storage("list staged rows", err)
	}
	defer rows.Close()

	staged := []model.StagedRow{}
	for rows.Next() {
		var r model.StagedRow
		var recordJSON string
		if err := rows.Scan(&r.Index, &recordJSON); err != nil {
			return nil, apperrors.Storage("scan staged row", err)
		}
		if err := json.Unmarshal([]byte(recordJSON), &r.Record); err != nil {
			return nil, apperrors.Storage("unmarshal staged row", err)
		}
		staged = append(staged, r)
	}
	return staged, apperrors.Storage("list staged rows iterate", rows.Err())
}

func (s *SQLiteStore) ListRowErrors(ctx context.Context, uploadID string) ([]model.RowError, error) {
	if _, err := s.GetUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_number, field, value, reason FROM row_errors WHERE upload_id = ? ORDER BY row_number`, uploadID)
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

func (s *SQLiteStore) InsertResults(ctx context.Context, uploadID string, results []model.ResultRow) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		u, err := getUploadSQL(ctx, tx, uploadID)
		if err != nil {
			return err
		}
		if u.Status != model.UploadStatusProcessing {
			return apperrors.InvalidState(uploadID, string(u.Status), "insert results")
		}
		return insertResultsSQL(ctx, tx, uploadID, results)
	})
	return apperrors.Storage("insert results", err)
}

func (s *SQLiteStore) CompleteUpload(ctx context.Context, uploadID string, results []model.ResultRow) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE uploads SET status = ?, processed_rows = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(model.UploadStatusCompleted), len(results), time.Now().UTC(), uploadID, string(model.UploadStatusProcessing),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: complete upload")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: complete upload rows affected")
		}
		if n == 0 {
			return transitionFailureSQL(ctx, tx, uploadID, model.UploadStatusCompleted)
		}
		return insertResultsSQL(ctx, tx, uploadID, results)
	})
	return apperrors.Storage("complete upload", err)
}

func insertResultsSQL(ctx context.Context, tx *sql.Tx, uploadID string, results []model.ResultRow) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (`+resultColumnList+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare result insert")
	}
	defer stmt.Close()

	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.UploadID = uploadID
		if _, err := stmt.ExecContext(ctx, resultArgs(*r)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert result row %d", r.RowIndex)
		}
	}
	return nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, uploadID string) ([]model.ResultRow, error) {
	if _, err := s.GetUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumnList+` FROM results WHERE upload_id = ? ORDER BY row_index`, uploadID)
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

func (s *SQLiteStore) SaveClient(ctx context.Context, c *model.ScoredClient) error {
	prepareClient(c)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumnList+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clientArgs(*c)...,
	)
	return apperrors.Storage("save client", err)
}

func (s *SQLiteStore) ListClients(ctx context.Context, limit int) ([]model.ScoredClient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumnList+` FROM clients ORDER BY created_at DESC, rowid DESC LIMIT ?`, listLimit(limit))
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

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return apperrors.NotFound(entity, id)
	}
	return nil
}
