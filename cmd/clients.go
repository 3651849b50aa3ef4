package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Inspect individually scored clients",
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scored clients, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		clients, err := env.Query.ListClients(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "clients list")
		}
		if len(clients) == 0 {
			fmt.Fprintln(os.Stderr, "No clients found.")
			return nil
		}
		formatClientsList(os.Stdout, clients)
		return nil
	},
}

func init() {
	clientsListCmd.Flags().Int("limit", 50, "max number of clients to display")
	clientsCmd.AddCommand(clientsListCmd)
	rootCmd.AddCommand(clientsCmd)
}
