package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/client-analyzer/internal/model"
	"github.com/sells-group/client-analyzer/internal/store"
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Inspect and manage CSV uploads",
}

// -- uploads list --

var uploadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.UploadFilter{Limit: limit}
		if status != "" {
			st, err := model.ParseUploadStatus(status)
			if err != nil {
				return err
			}
			filter.Status = st
		}

		uploads, err := env.Query.ListUploads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "uploads list")
		}
		if len(uploads) == 0 {
			fmt.Fprintln(os.Stderr, "No uploads found.")
			return nil
		}

		formatUploadsList(os.Stdout, uploads)
		return nil
	},
}

// -- uploads show --

var uploadsShowCmd = &cobra.Command{
	Use:   "show <upload-id>",
	Short: "Show one upload as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		u, err := env.Query.GetUpload(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "uploads show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	},
}

// -- uploads errors --

var uploadsErrorsCmd = &cobra.Command{
	Use:   "errors <upload-id>",
	Short: "List rows rejected when the upload was ingested",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		errs, err := env.Query.RowErrors(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "uploads errors")
		}
		if len(errs) == 0 {
			fmt.Fprintln(os.Stderr, "No rejected rows.")
			return nil
		}
		formatRowErrors(os.Stdout, errs)
		return nil
	},
}

// -- uploads delete --

var uploadsDeleteCmd = &cobra.Command{
	Use:   "delete <upload-id>",
	Short: "Delete an upload with its staged rows, row errors and results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Pipeline.Delete(ctx, args[0]); err != nil {
			return eris.Wrap(err, "uploads delete")
		}
		fmt.Fprintf(os.Stdout, "Deleted upload %s\n", args[0])
		return nil
	},
}

func init() {
	uploadsListCmd.Flags().String("status", "", "filter by status (pending, processing, completed, failed)")
	uploadsListCmd.Flags().Int("limit", 50, "max number of uploads to display")

	uploadsCmd.AddCommand(uploadsListCmd)
	uploadsCmd.AddCommand(uploadsShowCmd)
	uploadsCmd.AddCommand(uploadsErrorsCmd)
	uploadsCmd.AddCommand(uploadsDeleteCmd)
	rootCmd.AddCommand(uploadsCmd)
}
