package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// DeleteCmd returns the delete command
func DeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document|bot> <id>",
		Short: "Delete every chunk of an owner",
		Long:  "Delete every chunk of an owner. For documents the archived source is removed too.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseOwner(args[0], args[1])
			if err != nil {
				return err
			}

			return withApp(func(ctx context.Context, a *app) error {
				n, err := a.ingestion.DeleteOwner(ctx, owner)
				if err != nil {
					return fmt.Errorf("failed to delete chunks: %w", err)
				}
				return printResult(cmd, map[string]int64{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %d chunks of %s\n", n, owner)
				})
			})
		},
	}

	addOutputFlag(cmd)

	return cmd
}
