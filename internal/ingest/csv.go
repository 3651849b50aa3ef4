// Package ingest parses client CSV uploads and drives the upload lifecycle:
// ingest stages the valid rows, process scores them, delete removes them.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/model"
	"github.com/sells-group/client-analyzer/internal/validate"
)

// Schema names the column layout detected from a CSV header.
type Schema string

const (
	// SchemaStandard carries the eight client columns.
	SchemaStandard Schema = "standard"
	// SchemaWithHistory adds a transaction_history column.
	SchemaWithHistory Schema = "with_history"
)

// RequiredColumns must all be present in the header. Their values may still
// be empty for the optional fields.
var RequiredColumns = []string{
	validate.FieldName,
	validate.FieldPhone,
	validate.FieldBusinessCategory,
	validate.FieldLocation,
	validate.FieldRating,
	validate.FieldReviewCount,
	validate.FieldEmail,
	validate.FieldWebsite,
}

// headerAliases maps the Indonesian column names used by older exports.
var headerAliases = map[string]string{
	"nama":              validate.FieldName,
	"nomor_telepon":     validate.FieldPhone,
	"telepon":           validate.FieldPhone,
	"kategori_usaha":    validate.FieldBusinessCategory,
	"lokasi":            validate.FieldLocation,
	"jumlah_ulasan":     validate.FieldReviewCount,
	"riwayat_transaksi": validate.FieldTransactionHistory,
}

// RawRow is one structurally valid data row keyed by canonical column name.
// Number is 1-based and does not count the header.
type RawRow struct {
	Number int
	Values map[string]string
}

// Table is a decoded CSV upload.
type Table struct {
	Schema  Schema
	Columns []string
	Rows    []RawRow
	// Rejected holds rows whose field count does not match the header.
	Rejected []model.RowError
}

// ParseCSV decodes r as a UTF-8 (optionally BOM-prefixed) or BOM-marked
// UTF-16 CSV file. It fails with a MalformedCSV error when the input is empty,
// cannot be tokenized, or lacks a required column.
func ParseCSV(r io.Reader) (*Table, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	reader := csv.NewReader(transform.NewReader(r, dec))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.MalformedCSV("file is empty", nil)
	}
	if err != nil {
		return nil, apperrors.MalformedCSV("read header", err)
	}

	columns, err := normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	t := &Table{Schema: detectSchema(columns), Columns: columns}

	for n := 1; ; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.MalformedCSV(fmt.Sprintf("read row %d", n), err)
		}

		if len(record) != len(columns) {
			t.Rejected = append(t.Rejected, model.RowError{
				Row:    n,
				Field:  "row",
				Value:  strings.Join(record, ","),
				Reason: fmt.Sprintf("expected %d fields, got %d", len(columns), len(record)),
			})
			continue
		}

		values := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			values[col] = UnescapeFormula(record[i])
		}
		t.Rows = append(t.Rows, RawRow{Number: n, Values: values})
	}

	return t, nil
}

// CanonicalColumn lower-cases and trims a header cell, folds spaces and
// hyphens to underscores, and resolves known aliases.
func CanonicalColumn(h string) string {
	c := strings.ToLower(strings.TrimSpace(h))
	c = strings.NewReplacer(" ", "_", "-", "_").Replace(c)
	if alias, ok := headerAliases[c]; ok {
		return alias
	}
	return c
}

func normalizeHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))

	for i, h := range header {
		c := CanonicalColumn(h)
		if c != "" && seen[c] {
			return nil, apperrors.MalformedCSV(fmt.Sprintf("duplicate column %q", c), nil)
		}
		seen[c] = true
		columns[i] = c
	}

	var missing []string
	for _, req := range RequiredColumns {
		if !seen[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.MissingColumns(missing)
	}
	return columns, nil
}

func detectSchema(columns []string) Schema {
	for _, c := range columns {
		if c == validate.FieldTransactionHistory {
			return SchemaWithHistory
		}
	}
	return SchemaStandard
}

// EscapeFormula prefixes a cell that a spreadsheet would evaluate as a
// formula with a single quote. ParseCSV strips the prefix again.
func EscapeFormula(v string) string {
	if v != "" && strings.ContainsRune(formulaPrefixes, rune(v[0])) {
		return "'" + v
	}
	return v
}

// UnescapeFormula reverses EscapeFormula.
func UnescapeFormula(v string) string {
	if len(v) > 1 && v[0] == '\'' && strings.ContainsRune(formulaPrefixes, rune(v[1])) {
		return v[1:]
	}
	return v
}

const formulaPrefixes = "=+-@\t\r"
