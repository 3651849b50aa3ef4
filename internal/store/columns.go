package store

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/client-analyzer/internal/model"
)

// resultColumns is the column order used for result inserts, COPY and scans.
var resultColumns = []string{
	"id", "upload_id", "row_index",
	"name", "phone", "business_category", "location", "rating", "review_count",
	"transaction_history", "email", "website",
	"potential_score", "segmentation", "priority", "recommendation_category",
}

var resultColumnList = strings.Join(resultColumns, ", ")

var clientColumns = []string{
	"id",
	"name", "phone", "business_category", "location", "rating", "review_count",
	"transaction_history", "email", "website",
	"potential_score", "segmentation", "priority", "recommendation_category",
	"created_at",
}

var clientColumnList = strings.Join(clientColumns, ", ")

type scannable interface {
	Scan(dest ...any) error
}

func scanUpload(row scannable) (*model.Upload, error) {
	var u model.Upload
	var status string
	if err := row.Scan(&u.ID, &u.OriginalFilename, &status, &u.TotalRows, &u.RejectedRows,
		&u.ProcessedRows, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := model.ParseUploadStatus(status)
	if err != nil {
		return nil, err
	}
	u.Status = st
	return &u, nil
}

func resultArgs(r model.ResultRow) []any {
	return []any{
		r.ID, r.UploadID, r.RowIndex,
		r.Name, r.Phone, string(r.BusinessCategory), r.Location, r.Rating, r.ReviewCount,
		r.TransactionHistory, r.Email, r.Website,
		r.PotentialScore, r.Segmentation, string(r.Priority), r.RecommendationCategory,
	}
}

func scanResult(row scannable) (model.ResultRow, error) {
	var r model.ResultRow
	var category, priority string
	err := row.Scan(
		&r.ID, &r.UploadID, &r.RowIndex,
		&r.Name, &r.Phone, &category, &r.Location, &r.Rating, &r.ReviewCount,
		&r.TransactionHistory, &r.Email, &r.Website,
		&r.PotentialScore, &r.Segmentation, &priority, &r.RecommendationCategory,
	)
	r.BusinessCategory = model.BusinessCategory(category)
	r.Priority = model.Priority(priority)
	return r, err
}

// prepareClient assigns an id and creation time when missing.
func prepareClient(c *model.ScoredClient) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}

func clientArgs(c model.ScoredClient) []any {
	return []any{
		c.ID,
		c.Name, c.Phone, string(c.BusinessCategory), c.Location, c.Rating, c.ReviewCount,
		c.TransactionHistory, c.Email, c.Website,
		c.Analysis.PotentialScore, c.Analysis.Segmentation, string(c.Analysis.Priority), c.Analysis.RecommendationCategory,
		c.CreatedAt,
	}
}

func scanClient(row scannable) (model.ScoredClient, error) {
	var c model.ScoredClient
	var category, priority string
	err := row.Scan(
		&c.ID,
		&c.Name, &c.Phone, &category, &c.Location, &c.Rating, &c.ReviewCount,
		&c.TransactionHistory, &c.Email, &c.Website,
		&c.Analysis.PotentialScore, &c.Analysis.Segmentation, &priority, &c.Analysis.RecommendationCategory,
		&c.CreatedAt,
	)
	c.BusinessCategory = model.BusinessCategory(category)
	c.Analysis.Priority = model.Priority(priority)
	return c, err
}
