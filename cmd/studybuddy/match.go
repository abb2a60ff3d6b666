package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/alem-hub/study-buddy/internal/application/query"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates <student-id>",
	Short: "Find compatible study partners for a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		withAI, _ := cmd.Flags().GetBool("ai")

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			result, err := a.findCandidates.Handle(ctx, query.FindCandidatesQuery{
				StudentID:         args[0],
				Limit:             limit,
				IncludeAIAnalysis: withAI,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <student-id> <candidate-id>",
	Short: "Score the compatibility of two students",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			result, err := a.calculate.Handle(ctx, query.PairQuery{
				StudentID:   args[0],
				CandidateID: args[1],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

func init() {
	candidatesCmd.Flags().Int("limit", 0, "maximum number of candidates (0 = configured default)")
	candidatesCmd.Flags().Bool("ai", false, "attach AI compatibility analysis")
}

func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
