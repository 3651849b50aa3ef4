// Package store persists uploads, staged rows, row errors, results and
// standalone scored clients.
package store

import (
	"context"

	"github.com/sells-group/client-analyzer/internal/model"
)

// UploadFilter specifies criteria for listing uploads.
type UploadFilter struct {
	Status model.UploadStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analyzer.
//
// Errors are classified with the apperrors kinds: unknown ids return
// NotFound, illegal lifecycle changes return InvalidTransition or
// InvalidState, and driver failures return StorageFailure.
type Store interface {
	// Uploads
	CreateUpload(ctx context.Context, filename string, rows []model.StagedRow, rowErrors []model.RowError) (*model.Upload, error)
	GetUpload(ctx context.Context, id string) (*model.Upload, error)
	ListUploads(ctx context.Context, filter UploadFilter) ([]model.Upload, error)
	// SetStatus performs one legal transition as a single check-and-set.
	SetStatus(ctx context.Context, id string, status model.UploadStatus) error
	// DeleteUpload removes the upload with its staged rows, row errors and
	// results in one transaction.
	DeleteUpload(ctx context.Context, id string) error

	// Staged rows and row errors
	StagedRows(ctx context.Context, uploadID string) ([]model.StagedRow, error)
	ListRowErrors(ctx context.Context, uploadID string) ([]model.RowError, error)

	// Results
	// InsertResults writes a full result batch while the upload is processing.
	InsertResults(ctx context.Context, uploadID string, results []model.ResultRow) error
	// CompleteUpload writes the result batch and moves the upload from
	// processing to completed in one transaction.
	CompleteUpload(ctx context.Context, uploadID string, results []model.ResultRow) error
	// ListResults returns an upload's results in input order.
	ListResults(ctx context.Context, uploadID string) ([]model.ResultRow, error)

	// Standalone clients
	SaveClient(ctx context.Context, c *model.ScoredClient) error
	ListClients(ctx context.Context, limit int) ([]model.ScoredClient, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
