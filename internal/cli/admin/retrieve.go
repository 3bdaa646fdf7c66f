package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docrag/internal/service"
)

// RetrieveCmd returns the retrieve command
func RetrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <document|bot> <id>",
		Short: "Run a similarity query against one owner's chunks",
		Args:  cobra.ExactArgs(2),
		RunE:  runRetrieve,
	}

	cmd.Flags().StringP("query", "q", "", "Query text (required)")
	cmd.Flags().IntP("top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().Float64("min-similarity", 0, "Minimum cosine similarity (default from config)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	owner, err := parseOwner(args[0], args[1])
	if err != nil {
		return err
	}

	in := service.RetrieveInput{Owner: owner, ActorID: operatorActor}
	in.Query, _ = cmd.Flags().GetString("query")
	in.K, _ = cmd.Flags().GetInt("top-k")
	if cmd.Flags().Changed("min-similarity") {
		v, _ := cmd.Flags().GetFloat64("min-similarity")
		in.MinSimilarity = &v
	}

	return withApp(func(ctx context.Context, a *app) error {
		hits, err := a.retrieval.Retrieve(ctx, in)
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		return printResult(cmd, hits, func(w io.Writer) {
			if len(hits) == 0 {
				fmt.Fprintln(w, "No chunks above the similarity threshold.")
				return
			}
			for _, h := range hits {
				fmt.Fprintf(w, "[%d] %.4f  %s\n", h.Index, h.Similarity, preview(h.Text, 100))
			}
		})
	})
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
