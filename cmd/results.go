package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/client-analyzer/internal/api"
	"github.com/sells-group/client-analyzer/internal/query"
)

var resultsCmd = &cobra.Command{
	Use:   "results <upload-id>",
	Short: "Show an upload's results ranked by potential score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		filter, _ := cmd.Flags().GetString("filter")
		asJSON, _ := cmd.Flags().GetBool("json")

		set, err := env.Query.GetResults(ctx, args[0], filter)
		if err != nil {
			return eris.Wrap(err, "results")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		}

		fmt.Fprintf(os.Stdout, "Upload %s (%s, %s)\n\n", set.Upload.ID, set.Upload.OriginalFilename, set.Upload.Status)
		formatResults(os.Stdout, set.Results)
		fmt.Fprintln(os.Stdout)
		formatSummary(os.Stdout, set.Summary)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <upload-id>",
	Short: "Show count, average score and priority counts for an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		filter, _ := cmd.Flags().GetString("filter")
		set, err := env.Query.GetResults(ctx, args[0], filter)
		if err != nil {
			return eris.Wrap(err, "summary")
		}
		formatSummary(os.Stdout, set.Summary)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <upload-id>",
	Short: "Export an upload's ranked results as CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if format != query.FormatCSV && format != query.FormatXLSX {
			return eris.Errorf("--format must be csv or xlsx (got %q)", format)
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		u, err := env.Query.GetUpload(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}
		data, err := env.Query.Export(ctx, u.ID, format)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		if output == "-" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if output == "" {
			output = api.ExportFilename(u.OriginalFilename, format)
		}
		if err := os.WriteFile(filepath.Clean(output), data, 0o644); err != nil {
			return eris.Wrap(err, "write export")
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", output, len(data))
		return nil
	},
}

func init() {
	resultsCmd.Flags().String("filter", "", "only rows whose name contains this text (case-insensitive)")
	resultsCmd.Flags().Bool("json", false, "print the result set as JSON")
	summaryCmd.Flags().String("filter", "", "only rows whose name contains this text (case-insensitive)")
	exportCmd.Flags().String("format", query.FormatCSV, "export format: csv or xlsx")
	exportCmd.Flags().StringP("output", "o", "", "output path (default <upload>_results.<format>, - for stdout)")

	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(exportCmd)
}
