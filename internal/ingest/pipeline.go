package ingest

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/metrics"
	"github.com/sells-group/client-analyzer/internal/model"
	"github.com/sells-group/client-analyzer/internal/scorer"
	"github.com/sells-group/client-analyzer/internal/store"
	"github.com/sells-group/client-analyzer/internal/validate"
)

const defaultWorkers = 4

// Invalidator drops cached artifacts derived from an upload.
type Invalidator interface {
	Invalidate(ctx context.Context, uploadID string) error
}

// Pipeline orchestrates the upload lifecycle over a Store.
type Pipeline struct {
	store     store.Store
	engine    *scorer.Engine
	validator *validate.Validator
	workers   int
	metrics   *metrics.Metrics
	cache     Invalidator
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds the number of rows scored concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMetrics records ingest and process outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithInvalidator registers a cache to invalidate when an upload is deleted.
func WithInvalidator(inv Invalidator) Option {
	return func(p *Pipeline) { p.cache = inv }
}

// New creates a Pipeline.
func New(st store.Store, engine *scorer.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     st,
		engine:    engine,
		validator: validate.New(),
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestResult is returned by Ingest.
type IngestResult struct {
	Upload    *model.Upload    `json:"upload"`
	Schema    Schema           `json:"schema"`
	RowErrors []model.RowError `json:"row_errors"`
}

// ProcessResult is returned by Process.
type ProcessResult struct {
	UploadID      string `json:"upload_id"`
	ProcessedRows int    `json:"processed_rows"`
	// Vanished is set when the upload was deleted while it was being scored.
	Vanished bool `json:"vanished,omitempty"`
}

// Ingest parses a CSV upload, validates every row and creates a pending
// upload holding the valid rows. Invalid rows are reported in the result and
// persisted; only a malformed file fails the whole call.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, filename string) (*IngestResult, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, apperrors.Validation("filename", "", "is required")
	}
	log := zap.L().With(zap.String("filename", filename))

	table, err := ParseCSV(r)
	if err != nil {
		log.Warn("ingest: rejected file", zap.Error(err))
		return nil, err
	}

	rowErrors := append([]model.RowError(nil), table.Rejected...)
	staged := make([]model.StagedRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec, err := p.validator.Row(row.Values)
		if err != nil {
			rowErrors = append(rowErrors, rowError(row.Number, err))
			continue
		}
		staged = append(staged, model.StagedRow{Index: len(staged), Record: rec})
	}
	slices.SortStableFunc(rowErrors, func(a, b model.RowError) int { return a.Row - b.Row })

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: cancelled")
	}

	upload, err := p.store.CreateUpload(ctx, filename, staged, rowErrors)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create upload")
	}

	p.metrics.RecordIngest(len(staged), len(rowErrors))
	log.Info("ingest: upload created",
		zap.String("upload_id", upload.ID),
		zap.String("schema", string(table.Schema)),
		zap.Int("rows", len(staged)),
		zap.Int("rejected", len(rowErrors)),
	)

	return &IngestResult{Upload: upload, Schema: table.Schema, RowErrors: rowErrors}, nil
}

// Process scores every staged row of a pending upload and completes it.
// Only one caller can move an upload out of pending; every other caller gets
// an InvalidState error. A storage failure after the claim marks the upload
// failed and returns the cause. An upload deleted mid-run is a no-op.
func (p *Pipeline) Process(ctx context.Context, id string) (*ProcessResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("upload_id", id))

	if err := p.store.SetStatus(ctx, id, model.UploadStatusProcessing); err != nil {
		var te *apperrors.TransitionError
		if errors.As(err, &te) {
			p.metrics.RecordProcess("rejected", 0)
			return nil, apperrors.InvalidState(id, te.From, "process")
		}
		return nil, eris.Wrap(err, "process: claim upload")
	}
	log.Info("process: started")

	rows, err := p.store.StagedRows(ctx, id)
	if err != nil {
		return p.abort(ctx, log, id, start, eris.Wrap(err, "process: load staged rows"))
	}

	results, err := p.scoreRows(ctx, id, rows)
	if err != nil {
		return p.abort(ctx, log, id, start, eris.Wrap(err, "process: score rows"))
	}

	if err := p.store.CompleteUpload(ctx, id, results); err != nil {
		return p.abort(ctx, log, id, start, eris.Wrap(err, "process: complete upload"))
	}

	p.metrics.RecordProcess("completed", time.Since(start))
	log.Info("process: completed",
		zap.Int("rows", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &ProcessResult{UploadID: id, ProcessedRows: len(results)}, nil
}

// scoreRows runs the engine over rows with bounded parallelism. The returned
// slice keeps the staged order.
func (p *Pipeline) scoreRows(ctx context.Context, id string, rows []model.StagedRow) ([]model.ResultRow, error) {
	results := make([]model.ResultRow, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = model.ResultRow{
				UploadID:       id,
				RowIndex:       row.Index,
				ClientRecord:   row.Record,
				AnalysisResult: p.engine.Score(row.Record),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// abort handles a failure after the upload was claimed. A vanished upload
// ends the run quietly; anything else moves the upload to failed.
func (p *Pipeline) abort(ctx context.Context, log *zap.Logger, id string, start time.Time, cause error) (*ProcessResult, error) {
	if errors.Is(cause, apperrors.ErrNotFound) {
		p.metrics.RecordProcess("vanished", time.Since(start))
		log.Info("process: upload deleted during run")
		return &ProcessResult{UploadID: id, Vanished: true}, nil
	}

	// The caller's context may be the reason for the failure.
	if err := p.store.SetStatus(context.WithoutCancel(ctx), id, model.UploadStatusFailed); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			p.metrics.RecordProcess("vanished", time.Since(start))
			log.Info("process: upload deleted during run", zap.NamedError("cause", cause))
			return &ProcessResult{UploadID: id, Vanished: true}, nil
		}
		log.Error("process: could not mark upload failed", zap.Error(err))
	}

	p.metrics.RecordProcess("failed", time.Since(start))
	log.Error("process: failed", zap.Error(cause))
	return nil, cause
}

// Delete removes an upload with everything derived from it.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	if err := p.store.DeleteUpload(ctx, id); err != nil {
		return eris.Wrap(err, "delete upload")
	}
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, id); err != nil {
			zap.L().Warn("delete: cache invalidation failed", zap.String("upload_id", id), zap.Error(err))
		}
	}
	zap.L().Info("delete: upload removed", zap.String("upload_id", id))
	return nil
}

// ScoreClient validates and scores a single client and records it in the
// standalone client log.
func (p *Pipeline) ScoreClient(ctx context.Context, rec model.ClientRecord) (*model.ScoredClient, error) {
	rec, err := p.validator.Record(rec)
	if err != nil {
		return nil, err
	}

	c := &model.ScoredClient{ClientRecord: rec, Analysis: p.engine.Score(rec)}
	if err := p.store.SaveClient(ctx, c); err != nil {
		return nil, eris.Wrap(err, "score client: save")
	}
	p.metrics.RecordClientScored()
	return c, nil
}

// ScoreRow validates a raw field map, as posted by a form, then scores and
// records it like ScoreClient. Keys go through the same header aliases as a
// CSV upload.
func (p *Pipeline) ScoreRow(ctx context.Context, raw map[string]string) (*model.ScoredClient, error) {
	canonical := make(map[string]string, len(raw))
	for k, v := range raw {
		canonical[CanonicalColumn(k)] = v
	}
	rec, err := p.validator.Row(canonical)
	if err != nil {
		return nil, err
	}
	return p.ScoreClient(ctx, rec)
}

// Engine returns the scoring engine used by the pipeline.
func (p *Pipeline) Engine() *scorer.Engine {
	return p.engine
}

func rowError(row int, err error) model.RowError {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return model.RowError{Row: row, Field: ve.Field, Value: ve.Value, Reason: ve.Reason}
	}
	return model.RowError{Row: row, Reason: err.Error()}
}
