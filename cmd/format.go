package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/sells-group/client-analyzer/internal/model"
	"github.com/sells-group/client-analyzer/internal/query"
)

// formatUploadsList writes a table of uploads to out.
func formatUploadsList(out io.Writer, uploads []model.Upload) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tROWS\tREJECTED\tPROCESSED\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t----\t--------\t---------\t-------")

	for _, u := range uploads {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			truncateID(u.ID),
			truncate(u.OriginalFilename, 30),
			u.Status,
			u.TotalRows,
			u.RejectedRows,
			u.ProcessedRows,
			u.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRowErrors writes rejected rows to out.
func formatRowErrors(out io.Writer, errs []model.RowError) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tFIELD\tVALUE\tREASON")
	_, _ = fmt.Fprintln(w, "---\t-----\t-----\t------")

	for _, e := range errs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Row, e.Field, truncate(e.Value, 30), e.Reason)
	}
	_ = w.Flush()
}

// formatResults writes ranked results to out.
func formatResults(out io.Writer, rows []query.RankedResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tNAME\tCATEGORY\tLOCATION\tSCORE\tPRIORITY\tSEGMENT\tRECOMMENDATION")
	_, _ = fmt.Fprintln(w, "----\t----\t--------\t--------\t-----\t--------\t-------\t--------------")

	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Rank,
			truncate(r.Name, 30),
			r.BusinessCategory,
			truncate(r.Location, 24),
			r.PotentialScore,
			r.Priority,
			r.Segmentation,
			r.RecommendationCategory,
		)
	}
	_ = w.Flush()
}

// formatSummary writes aggregate stats to out.
func formatSummary(out io.Writer, s model.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Clients:\t%d\n", s.Count)
	_, _ = fmt.Fprintf(w, "Average score:\t%.2f\n", s.AverageScore)
	for _, p := range model.Priorities {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", p, s.CountByPriority[p])
	}
	_ = w.Flush()
}

// formatClientsList writes a table of scored clients to out.
func formatClientsList(out io.Writer, clients []model.ScoredClient) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tRATING\tSCORE\tPRIORITY\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t------\t-----\t--------\t-------")

	for _, c := range clients {
		rating := "-"
		if c.Rating != nil {
			rating = strconv.FormatFloat(*c.Rating, 'f', 1, 64)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(c.ID),
			truncate(c.Name, 30),
			c.BusinessCategory,
			rating,
			c.Analysis.PotentialScore,
			c.Analysis.Priority,
			c.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
