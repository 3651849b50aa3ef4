package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// UploadStatus is the lifecycle state of a batch upload.
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// uploadTransitions is the complete set of legal status changes. Terminal states have no entry.
var uploadTransitions = map[UploadStatus][]UploadStatus{
	UploadStatusPending:    {UploadStatusProcessing},
	UploadStatusProcessing: {UploadStatusCompleted, UploadStatusFailed},
}

// ParseUploadStatus converts a stored status string into an UploadStatus.
func ParseUploadStatus(s string) (UploadStatus, error) {
	switch st := UploadStatus(s); st {
	case UploadStatusPending, UploadStatusProcessing, UploadStatusCompleted, UploadStatusFailed:
		return st, nil
	}
	return "", eris.Errorf("model: unknown upload status %q", s)
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s UploadStatus) CanTransitionTo(next UploadStatus) bool {
	for _, to := range uploadTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s UploadStatus) Terminal() bool {
	return len(uploadTransitions[s]) == 0
}

// TransitionSource returns the single status from which next can be reached.
// Every reachable status has exactly one predecessor, which lets stores
// implement a transition as one conditional update.
func TransitionSource(next UploadStatus) (UploadStatus, bool) {
	for from, tos := range uploadTransitions {
		for _, to := range tos {
			if to == next {
				return from, true
			}
		}
	}
	return "", false
}

// Upload is one batch CSV ingestion job.
type Upload struct {
	ID               string       `json:"id"`
	OriginalFilename string       `json:"original_filename"`
	Status           UploadStatus `json:"status"`
	TotalRows        int          `json:"total_rows"`
	RejectedRows     int          `json:"rejected_rows"`
	ProcessedRows    int          `json:"processed_rows"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// StagedRow is a validated client waiting to be scored. Index is the
// zero-based position among the upload's valid rows and fixes scoring order.
type StagedRow struct {
	Index  int          `json:"index"`
	Record ClientRecord `json:"record"`
}

// ResultRow is one scored client within an upload. Immutable once written.
type ResultRow struct {
	ID       string `json:"id"`
	UploadID string `json:"upload_id"`
	RowIndex int    `json:"row_index"`
	ClientRecord
	AnalysisResult
}

// RowError records why a CSV row was rejected during ingest.
// Row is the 1-based data row number (the header is not counted).
type RowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}
