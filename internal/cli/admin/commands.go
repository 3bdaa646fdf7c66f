package admin

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docrag/internal/cli"
	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/logging"
)

const operatorActor = "operator"

func loadConfigOnly() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	return cfg, nil
}

// withApp wires the pipeline without migrating, runs fn and tears it down.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close(ctx)
	return fn(ctx, a)
}

// parseOwner builds an owner from a "document" or "bot" argument.
func parseOwner(kind, id string) (domain.Owner, error) {
	owner := domain.Owner{Kind: domain.OwnerKind(strings.ToLower(kind)), ID: id}
	if err := domain.ValidateOwner(owner); err != nil {
		return domain.Owner{}, err
	}
	return owner, nil
}

// readText reads path, or stdin when path is "-".
func readText(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

// printResult writes v as JSON when --output=json, otherwise calls text.
func printResult(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	format, _ := cmd.Flags().GetString("output")
	if format == "json" {
		return cli.WriteJSON(cmd.OutOrStdout(), v)
	}
	text(cmd.OutOrStdout())
	return nil
}

func printIngestResult(cmd *cobra.Command, owner domain.Owner, res *domain.IngestResult) error {
	return printResult(cmd, res, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d chunks stored, %d embedded, %d pending\n",
			owner, res.ChunkCount, res.EmbeddedCount, res.PendingCount)
		if !res.Success && res.Error != "" {
			fmt.Fprintf(w, "warning: %s\n", res.Error)
		}
	})
}
