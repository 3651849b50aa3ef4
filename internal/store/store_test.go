package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func stagedRows() []model.StagedRow {
	return []model.StagedRow{
		{Index: 0, Record: model.ClientRecord{
			Name: "Toko Maju", BusinessCategory: model.CategoryRetail, Location: "Bandung",
			Rating: model.Float64Ptr(4.5), ReviewCount: model.IntPtr(120), Phone: "+6281234567890",
		}},
		{Index: 1, Record: model.ClientRecord{
			Name: "Bengkel Jaya", BusinessCategory: model.CategoryAutomotive, Location: "Medan",
		}},
	}
}

func resultsFor(rows []model.StagedRow) []model.ResultRow {
	out := make([]model.ResultRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ResultRow{
			RowIndex:     r.Index,
			ClientRecord: r.Record,
			AnalysisResult: model.AnalysisResult{
				PotentialScore:         70 - r.Index*20,
				Segmentation:           "Established Retail",
				Priority:               model.PriorityMedium,
				RecommendationCategory: "Nurture",
			},
		})
	}
	return out
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetUpload", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rowErrs := []model.RowError{{Row: 3, Field: "business_category", Value: "Mining", Reason: "must be one of"}}
		u, err := s.CreateUpload(ctx, "clients.csv", stagedRows(), rowErrs)
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, model.UploadStatusPending, u.Status)
		assert.Equal(t, 2, u.TotalRows)
		assert.Equal(t, 1, u.RejectedRows)

		got, err := s.GetUpload(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "clients.csv", got.OriginalFilename)
		assert.Equal(t, model.UploadStatusPending, got.Status)
		assert.Equal(t, 2, got.TotalRows)
		assert.Zero(t, got.ProcessedRows)

		staged, err := s.StagedRows(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, staged, 2)
		assert.Equal(t, "Toko Maju", staged[0].Record.Name)
		require.NotNil(t, staged[0].Record.Rating)
		assert.InDelta(t, 4.5, *staged[0].Record.Rating, 0.0001)
		assert.Nil(t, staged[1].Record.Rating)

		errs, err := s.ListRowErrors(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, rowErrs, errs)
	})

	t.Run("GetUploadNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetUpload(context.Background(), "missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("ListUploadsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.CreateUpload(ctx, "a.csv", nil, nil)
		require.NoError(t, err)
		second, err := s.CreateUpload(ctx, "b.csv", nil, nil)
		require.NoError(t, err)

		list, err := s.ListUploads(ctx, UploadFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)

		require.NoError(t, s.SetStatus(ctx, first.ID, model.UploadStatusProcessing))
		list, err = s.ListUploads(ctx, UploadFilter{Status: model.UploadStatusProcessing})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, first.ID, list[0].ID)

		list, err = s.ListUploads(ctx, UploadFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, first.ID, list[0].ID)
	})

	t.Run("ListUploadsEmpty", func(t *testing.T) {
		s := newStore(t)
		list, err := s.ListUploads(context.Background(), UploadFilter{})
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("SetStatusTransitions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u, err := s.CreateUpload(ctx, "a.csv", stagedRows(), nil)
		require.NoError(t, err)

		err = s.SetStatus(ctx, u.ID, model.UploadStatusCompleted)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

		err = s.SetStatus(ctx, u.ID, model.UploadStatusPending)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

		require.NoError(t, s.SetStatus(ctx, u.ID, model.UploadStatusProcessing))

		err = s.SetStatus(ctx, u.ID, model.UploadStatusProcessing)
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)

		require.NoError(t, s.SetStatus(ctx, u.ID, model.UploadStatusFailed))
		got, err := s.GetUpload(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, model.UploadStatusFailed, got.Status)

		err = s.SetStatus(ctx, u.ID, model.UploadStatusCompleted)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	})

	t.Run("SetStatusNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.SetStatus(context.Background(), "missing", model.UploadStatusProcessing)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("InsertResultsRequiresProcessing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rows := stagedRows()
		u, err := s.CreateUpload(ctx, "a.csv", rows, nil)
		require.NoError(t, err)

		err = s.InsertResults(ctx, u.ID, resultsFor(rows))
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)

		results, err := s.ListResults(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, results)

		require.NoError(t, s.SetStatus(ctx, u.ID, model.UploadStatusProcessing))
		require.NoError(t, s.InsertResults(ctx, u.ID, resultsFor(rows)))

		results, err = s.ListResults(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("CompleteUpload", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rows := stagedRows()
		u, err := s.CreateUpload(ctx, "a.csv", rows, nil)
		require.NoError(t, err)

		err = s.CompleteUpload(ctx, u.ID, resultsFor(rows))
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

		require.NoError(t, s.SetStatus(ctx, u.ID, model.UploadStatusProcessing))
		require.NoError(t, s.CompleteUpload(ctx, u.ID, resultsFor(rows)))

		got, err := s.GetUpload(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, model.UploadStatusCompleted, got.Status)
		assert.Equal(t, 2, got.ProcessedRows)

		results, err := s.ListResults(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 0, results[0].RowIndex)
		assert.Equal(t, u.ID, results[0].UploadID)
		assert.NotEmpty(t, results[0].ID)
		assert.Equal(t, "Toko Maju", results[0].Name)
		assert.Equal(t, model.CategoryRetail, results[0].BusinessCategory)
		assert.Equal(t, "+6281234567890", results[0].Phone)
		require.NotNil(t, results[0].ReviewCount)
		assert.Equal(t, 120, *results[0].ReviewCount)
		assert.Equal(t, 70, results[0].PotentialScore)
		assert.Equal(t, model.PriorityMedium, results[0].Priority)
		assert.Nil(t, results[1].Rating)
		assert.Nil(t, results[1].ReviewCount)

		// A second completion must not write a second result set.
		err = s.CompleteUpload(ctx, u.ID, resultsFor(rows))
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
		results, err = s.ListResults(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("CompleteUploadVanished", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rows := stagedRows()
		u, err := s.CreateUpload(ctx, "a.csv", rows, nil)
		require.NoError(t, err)
		require.NoError(t, s.SetStatus(ctx, u.ID, model.UploadStatusProcessing))
		require.NoError(t, s.DeleteUpload(ctx, u.ID))

		err = s.CompleteUpload(ctx, u.ID, resultsFor(rows))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("CompleteUploadAllOrNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rows := stagedRows()
		u, err := s.CreateUpload(ctx, "a.csv", rows, nil)
		require.NoError(t, err)
		require.NoError(t, s.SetStatus(ctx, u.ID, model.UploadStatusProcessing))

		// Duplicate row index violates the unique constraint on the second insert.
		bad := resultsFor(rows)
		bad[1].RowIndex = 0
		err = s.CompleteUpload(ctx, u.ID, bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrStorage)

		got, err := s.GetUpload(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, model.UploadStatusProcessing, got.Status)

		results, err := s.ListResults(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("DeleteUploadCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rows := stagedRows()
		keep, err := s.CreateUpload(ctx, "keep.csv", rows, nil)
		require.NoError(t, err)
		u, err := s.CreateUpload(ctx, "a.csv", rows, []model.RowError{{Row: 1, Field: "name", Reason: "is required"}})
		require.NoError(t, err)
		for _, id := range []string{keep.ID, u.ID} {
			require.NoError(t, s.SetStatus(ctx, id, model.UploadStatusProcessing))
			require.NoError(t, s.CompleteUpload(ctx, id, resultsFor(rows)))
		}

		require.NoError(t, s.DeleteUpload(ctx, u.ID))

		_, err = s.GetUpload(ctx, u.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = s.ListResults(ctx, u.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = s.ListRowErrors(ctx, u.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		kept, err := s.ListResults(ctx, keep.ID)
		require.NoError(t, err)
		assert.Len(t, kept, 2)

		err = s.DeleteUpload(ctx, u.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("Clients", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c1 := &model.ScoredClient{
			ClientRecord: model.ClientRecord{Name: "A", BusinessCategory: model.CategoryFood, Location: "Jakarta"},
			Analysis:     model.AnalysisResult{PotentialScore: 80, Segmentation: "Premium Culinary", Priority: model.PriorityHigh, RecommendationCategory: "Immediate Outreach"},
		}
		require.NoError(t, s.SaveClient(ctx, c1))
		assert.NotEmpty(t, c1.ID)
		assert.False(t, c1.CreatedAt.IsZero())

		c2 := &model.ScoredClient{
			ClientRecord: model.ClientRecord{Name: "B", BusinessCategory: model.CategoryHealth, Location: "Depok", Rating: model.Float64Ptr(3)},
			Analysis:     model.AnalysisResult{PotentialScore: 40, Segmentation: "Developing Wellness", Priority: model.PriorityLow, RecommendationCategory: "Periodic Check-in"},
		}
		require.NoError(t, s.SaveClient(ctx, c2))

		list, err := s.ListClients(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, c2.ID, list[0].ID)
		assert.Equal(t, model.PriorityLow, list[0].Analysis.Priority)
		require.NotNil(t, list[0].Rating)
		assert.InDelta(t, 3.0, *list[0].Rating, 0.0001)
		assert.Equal(t, "A", list[1].Name)

		list, err = s.ListClients(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}
