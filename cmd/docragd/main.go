package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docrag/internal/cli"
	"github.com/cloo-solutions/docrag/internal/cli/admin"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "docragd",
		Short: "Document chunking, embedding and retrieval service",
		Long: `docragd runs the RAG ingestion and retrieval API and provides operator
commands against the same database.

Configuration is read from DOCRAG_* environment variables and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.RetrieveCmd())
	rootCmd.AddCommand(admin.BackfillCmd())
	rootCmd.AddCommand(admin.DeleteCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if cli.CheckHelpJSON(os.Stdout, rootCmd, os.Args[1:]) {
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
