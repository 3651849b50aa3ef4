package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/client-analyzer/internal/validate"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a single client and record it",
	Long:  "Validates and scores one client from flags, stores it in the client log, and prints the analysis as JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		raw := map[string]string{}
		for _, f := range []string{
			validate.FieldName,
			validate.FieldPhone,
			validate.FieldBusinessCategory,
			validate.FieldLocation,
			validate.FieldRating,
			validate.FieldReviewCount,
			validate.FieldTransactionHistory,
			validate.FieldEmail,
			validate.FieldWebsite,
		} {
			flag := cmd.Flags().Lookup(flagName(f))
			if flag != nil && flag.Changed {
				raw[f] = flag.Value.String()
			}
		}

		c, err := env.Pipeline.ScoreRow(ctx, raw)
		if err != nil {
			return eris.Wrap(err, "score")
		}

		explain, _ := cmd.Flags().GetBool("explain")
		out := map[string]any{"client": c}
		if explain {
			out["breakdown"] = env.Engine.Breakdown(c.ClientRecord)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// flagName converts a field name to its kebab-case flag.
func flagName(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

func init() {
	scoreCmd.Flags().String("name", "", "business name (required)")
	scoreCmd.Flags().String("phone", "", "phone number")
	scoreCmd.Flags().String("business-category", "", "Retail, Food, Fashion, Technology, Services, Health, Education or Automotive (required)")
	scoreCmd.Flags().String("location", "", "city or address (required)")
	scoreCmd.Flags().String("rating", "", "rating between 0 and 5")
	scoreCmd.Flags().String("review-count", "", "number of reviews")
	scoreCmd.Flags().String("transaction-history", "", "free-text purchase history")
	scoreCmd.Flags().String("email", "", "email address")
	scoreCmd.Flags().String("website", "", "website URL")
	scoreCmd.Flags().Bool("explain", false, "include the sub-score breakdown")
	rootCmd.AddCommand(scoreCmd)
}

