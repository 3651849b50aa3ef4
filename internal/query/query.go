// Package query is the read side of the analyzer: ranked results with a
// name filter, summaries and CSV/XLSX exports.
package query

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/client-analyzer/internal/metrics"
	"github.com/sells-group/client-analyzer/internal/model"
	"github.com/sells-group/client-analyzer/internal/store"
)

// Cache stores rendered exports per upload and format.
type Cache interface {
	Get(ctx context.Context, uploadID, format string) ([]byte, bool, error)
	Set(ctx context.Context, uploadID, format string, data []byte) error
	Invalidate(ctx context.Context, uploadID string) error
}

// RankedResult is a result row with its 1-based position in a ranked listing.
type RankedResult struct {
	Rank int `json:"rank"`
	model.ResultRow
}

// ResultSet is the response of GetResults.
type ResultSet struct {
	Upload  *model.Upload  `json:"upload"`
	Results []RankedResult `json:"results"`
	Summary model.Summary  `json:"summary"`
}

// Service reads uploads and results from a Store.
type Service struct {
	store   store.Store
	cache   Cache
	metrics *metrics.Metrics
}

// New creates a Service. cache and m may be nil.
func New(st store.Store, cache Cache, m *metrics.Metrics) *Service {
	return &Service{store: st, cache: cache, metrics: m}
}

// ListUploads returns uploads newest first.
func (s *Service) ListUploads(ctx context.Context, filter store.UploadFilter) ([]model.Upload, error) {
	uploads, err := s.store.ListUploads(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "query: list uploads")
	}
	return uploads, nil
}

// GetUpload returns one upload.
func (s *Service) GetUpload(ctx context.Context, id string) (*model.Upload, error) {
	u, err := s.store.GetUpload(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "query: get upload")
	}
	return u, nil
}

// RowErrors returns the rows rejected when the upload was ingested.
func (s *Service) RowErrors(ctx context.Context, id string) ([]model.RowError, error) {
	errs, err := s.store.ListRowErrors(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "query: row errors")
	}
	return errs, nil
}

// ListClients returns standalone scored clients newest first.
func (s *Service) ListClients(ctx context.Context, limit int) ([]model.ScoredClient, error) {
	clients, err := s.store.ListClients(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "query: list clients")
	}
	return clients, nil
}

// GetResults returns an upload's results ranked by score, keeping only rows
// whose name contains nameFilter (case-insensitive) when it is non-empty.
// The summary covers the returned rows.
func (s *Service) GetResults(ctx context.Context, uploadID, nameFilter string) (*ResultSet, error) {
	u, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "query: get upload")
	}
	rows, err := s.store.ListResults(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "query: list results")
	}

	ranked := Rank(FilterByName(rows, nameFilter))
	return &ResultSet{
		Upload:  u,
		Results: ranked,
		Summary: Summarize(unranked(ranked)),
	}, nil
}

// Rank orders rows by potential score descending. Ties keep input order.
func Rank(rows []model.ResultRow) []RankedResult {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b model.ResultRow) int {
		if c := cmp.Compare(b.PotentialScore, a.PotentialScore); c != 0 {
			return c
		}
		return cmp.Compare(a.RowIndex, b.RowIndex)
	})

	out := make([]RankedResult, len(sorted))
	for i, r := range sorted {
		out[i] = RankedResult{Rank: i + 1, ResultRow: r}
	}
	return out
}

// FilterByName keeps rows whose name contains filter under Unicode case
// folding. A blank filter keeps every row. rows is not modified.
func FilterByName(rows []model.ResultRow, filter string) []model.ResultRow {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return rows
	}

	fold := cases.Fold()
	needle := fold.String(filter)

	out := make([]model.ResultRow, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(fold.String(r.Name), needle) {
			out = append(out, r)
		}
	}
	return out
}

// Summarize counts rows per priority and averages their scores. The average
// of an empty set is 0.
func Summarize(rows []model.ResultRow) model.Summary {
	sum := model.Summary{
		Count:           len(rows),
		CountByPriority: make(map[model.Priority]int, len(model.Priorities)),
	}
	for _, p := range model.Priorities {
		sum.CountByPriority[p] = 0
	}
	if len(rows) == 0 {
		return sum
	}

	total := 0
	for _, r := range rows {
		total += r.PotentialScore
		sum.CountByPriority[r.Priority]++
	}
	sum.AverageScore = math.Round(float64(total)/float64(len(rows))*100) / 100
	return sum
}

func unranked(ranked []RankedResult) []model.ResultRow {
	out := make([]model.ResultRow, len(ranked))
	for i, r := range ranked {
		out[i] = r.ResultRow
	}
	return out
}

// cached returns a rendered export from the cache, or renders, stores and
// returns it. Only completed uploads are cached: their results never change.
func (s *Service) cached(ctx context.Context, u *model.Upload, format string, render func() ([]byte, error)) ([]byte, error) {
	useCache := s.cache != nil && u.Status == model.UploadStatusCompleted
	log := zap.L().With(zap.String("upload_id", u.ID), zap.String("format", format))

	if useCache {
		data, ok, err := s.cache.Get(ctx, u.ID, format)
		switch {
		case err != nil:
			log.Warn("query: export cache read failed", zap.Error(err))
		case ok:
			s.metrics.RecordCache(true)
			return data, nil
		default:
			s.metrics.RecordCache(false)
		}
	}

	data, err := render()
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := s.cache.Set(ctx, u.ID, format, data); err != nil {
			log.Warn("query: export cache write failed", zap.Error(err))
		}
	}
	return data, nil
}
