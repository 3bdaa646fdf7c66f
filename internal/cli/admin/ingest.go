package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/service"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest text into the chunk store",
		Long:  "Chunk, embed and store a document or a bot knowledge item",
	}

	cmd.AddCommand(ingestDocumentCmd())
	cmd.AddCommand(ingestKnowledgeCmd())
	cmd.AddCommand(reingestCmd())

	return cmd
}

func ingestDocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document <document-id>",
		Short: "Replace a document's chunks with the chunks of a text file",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestDocument,
	}

	cmd.Flags().StringP("file", "f", "", "Path to the text file, or - for stdin (required)")
	cmd.Flags().String("name", "", "Source file name recorded with the document")
	cmd.Flags().String("type", "", "Source type recorded with the document")
	addIngestOptionFlags(cmd)
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runIngestDocument(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	text, err := readText(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	sourceType, _ := cmd.Flags().GetString("type")

	return withApp(func(ctx context.Context, a *app) error {
		res, err := a.ingestion.ProcessDocument(ctx, service.DocumentInput{
			DocumentID: args[0],
			ActorID:    operatorActor,
			Text:       text,
			SourceName: name,
			SourceType: sourceType,
			Options:    ingestOptionsFromFlags(cmd, a.ingestion.DefaultOptions()),
		})
		if err != nil {
			return fmt.Errorf("failed to ingest document: %w", err)
		}
		return printIngestResult(cmd, domain.DocumentOwner(args[0]), res)
	})
}

func ingestKnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge <bot-id>",
		Short: "Add one titled knowledge item to a bot",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestKnowledge,
	}

	cmd.Flags().StringP("title", "t", "", "Knowledge item title")
	cmd.Flags().StringP("file", "f", "", "Path to the item body, or - for stdin")
	addOutputFlag(cmd)

	return cmd
}

func runIngestKnowledge(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	path, _ := cmd.Flags().GetString("file")

	var body string
	if path != "" {
		var err error
		if body, err = readText(cmd.InOrStdin(), path); err != nil {
			return err
		}
	}
	if title == "" && body == "" {
		return fmt.Errorf("--title or --file is required")
	}

	return withApp(func(ctx context.Context, a *app) error {
		res, err := a.ingestion.ProcessKnowledgeItem(ctx, service.KnowledgeInput{
			BotID:   args[0],
			ActorID: operatorActor,
			Title:   title,
			Text:    body,
		})
		if err != nil {
			return fmt.Errorf("failed to ingest knowledge item: %w", err)
		}
		return printIngestResult(cmd, domain.BotOwner(args[0]), res)
	})
}

func reingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reingest <document-id>",
		Short: "Re-chunk a document from its archived source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.ingestion.ReingestDocument(ctx, args[0], operatorActor, ingestOptionsFromFlags(cmd, a.ingestion.DefaultOptions()))
				if err != nil {
					return fmt.Errorf("failed to reingest document: %w", err)
				}
				return printIngestResult(cmd, domain.DocumentOwner(args[0]), res)
			})
		},
	}

	addIngestOptionFlags(cmd)
	addOutputFlag(cmd)

	return cmd
}

func addIngestOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("chunk-size", 0, "Chunk size in characters (default from config)")
	cmd.Flags().Int("chunk-overlap", 0, "Chunk overlap in characters (default from config)")
	cmd.Flags().Bool("no-embed", false, "Store chunks without embeddings")
	cmd.Flags().Bool("no-metadata", false, "Skip metadata extraction")
}

// ingestOptionsFromFlags overlays the flags that were set onto defaults.
func ingestOptionsFromFlags(cmd *cobra.Command, defaults domain.IngestOptions) domain.IngestOptions {
	opts := defaults
	if cmd.Flags().Changed("chunk-size") {
		opts.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
	}
	if cmd.Flags().Changed("chunk-overlap") {
		opts.ChunkOverlap, _ = cmd.Flags().GetInt("chunk-overlap")
	}
	if noEmbed, _ := cmd.Flags().GetBool("no-embed"); noEmbed {
		opts.GenerateEmbeddings = false
	}
	if noMetadata, _ := cmd.Flags().GetBool("no-metadata"); noMetadata {
		opts.ExtractMetadata = false
	}
	return opts
}

