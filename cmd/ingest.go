package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a client CSV into a pending upload",
	Long:  "Parses and validates a CSV file, stages the valid rows as a pending upload, and reports rejected rows. Use --process to score immediately.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("csv")
		if path == "" {
			return eris.New("--csv is required")
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(path)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		res, err := env.Pipeline.Ingest(ctx, f, filepath.Base(path))
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		fmt.Fprintf(os.Stdout, "Upload %s: %d rows staged, %d rejected (%s schema)\n",
			res.Upload.ID, res.Upload.TotalRows, len(res.RowErrors), res.Schema)
		if len(res.RowErrors) > 0 {
			formatRowErrors(os.Stdout, res.RowErrors)
		}

		if process, _ := cmd.Flags().GetBool("process"); process {
			out, err := env.Pipeline.Process(ctx, res.Upload.ID)
			if err != nil {
				return eris.Wrap(err, "process")
			}
			fmt.Fprintf(os.Stdout, "Processed %d rows\n", out.ProcessedRows)
		}
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process <upload-id>",
	Short: "Score every staged row of a pending upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.Process(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "process")
		}
		if out.Vanished {
			fmt.Fprintf(os.Stdout, "Upload %s was deleted during processing\n", args[0])
			return nil
		}
		fmt.Fprintf(os.Stdout, "Upload %s completed: %d rows scored\n", args[0], out.ProcessedRows)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("csv", "", "path to the client CSV file")
	ingestCmd.Flags().Bool("process", false, "score the upload right after ingesting it")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(processCmd)
}
