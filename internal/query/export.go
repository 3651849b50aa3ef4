package query

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/ingest"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ExportColumns is the fixed column order of every export. Rows follow rank
// order. Absent optional values are written as empty cells so an export can
// be ingested again; the id columns are ignored by ingest.
var ExportColumns = []string{
	"rank",
	"id",
	"upload_id",
	"row_index",
	"name",
	"phone",
	"business_category",
	"location",
	"rating",
	"review_count",
	"transaction_history",
	"email",
	"website",
	"potential_score",
	"segmentation",
	"priority",
	"recommendation_category",
}

// Export renders an upload's ranked results in the given format.
func (s *Service) Export(ctx context.Context, uploadID, format string) ([]byte, error) {
	var render func([]RankedResult) ([]byte, error)
	switch format {
	case FormatCSV:
		render = renderCSV
	case FormatXLSX:
		render = renderXLSX
	default:
		return nil, apperrors.Validation("format", format, "must be csv or xlsx")
	}

	u, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "query: get upload")
	}

	return s.cached(ctx, u, format, func() ([]byte, error) {
		rows, err := s.store.ListResults(ctx, uploadID)
		if err != nil {
			return nil, eris.Wrap(err, "query: list results")
		}
		return render(Rank(rows))
	})
}

// writeCSV writes the header and one record per ranked row to w.
func writeCSV(w io.Writer, rows []RankedResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range rows {
		if err := cw.Write(exportRecord(r)); err != nil {
			return eris.Wrapf(err, "export: write rank %d", r.Rank)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

func renderCSV(rows []RankedResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows []RankedResult) ([]byte, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range ExportColumns {
		header.AddCell().SetString(col)
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.Rank)
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.UploadID)
		row.AddCell().SetInt(r.RowIndex)
		row.AddCell().SetString(r.Name)
		row.AddCell().SetString(r.Phone)
		row.AddCell().SetString(string(r.BusinessCategory))
		row.AddCell().SetString(r.Location)
		if r.Rating != nil {
			row.AddCell().SetFloat(*r.Rating)
		} else {
			row.AddCell().SetString("")
		}
		if r.ReviewCount != nil {
			row.AddCell().SetInt(*r.ReviewCount)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(r.TransactionHistory)
		row.AddCell().SetString(r.Email)
		row.AddCell().SetString(r.Website)
		row.AddCell().SetInt(r.PotentialScore)
		row.AddCell().SetString(r.Segmentation)
		row.AddCell().SetString(string(r.Priority))
		row.AddCell().SetString(r.RecommendationCategory)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}
	return buf.Bytes(), nil
}

func exportRecord(r RankedResult) []string {
	return []string{
		strconv.Itoa(r.Rank),
		r.ID,
		r.UploadID,
		strconv.Itoa(r.RowIndex),
		ingest.EscapeFormula(r.Name),
		ingest.EscapeFormula(r.Phone),
		string(r.BusinessCategory),
		ingest.EscapeFormula(r.Location),
		formatRating(r.Rating),
		formatCount(r.ReviewCount),
		ingest.EscapeFormula(r.TransactionHistory),
		ingest.EscapeFormula(r.Email),
		ingest.EscapeFormula(r.Website),
		strconv.Itoa(r.PotentialScore),
		r.Segmentation,
		string(r.Priority),
		r.RecommendationCategory,
	}
}


func formatRating(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatCount(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}
