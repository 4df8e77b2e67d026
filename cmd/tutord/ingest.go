package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/tutord/internal/chunker"
	"github.com/fyrsmithlabs/tutord/internal/config"
	"github.com/fyrsmithlabs/tutord/internal/embeddings"
	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/logging"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.yaml>",
	Short: "Ingest documents from a YAML file",
	Long: `Ingest documents from a YAML file directly into the vector store,
without going through the HTTP server.

The file holds a list of documents:

  documents:
    - title: Photosynthesis
      subject: biology
      grade_level: "8"
      content: |
        Plants convert light into chemical energy...`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// ingestFile is the on-disk shape of an ingestion batch.
type ingestFile struct {
	Documents []struct {
		Title      string            `yaml:"title"`
		Content    string            `yaml:"content"`
		Source     string            `yaml:"source"`
		Subject    string            `yaml:"subject"`
		GradeLevel string            `yaml:"grade_level"`
		DocType    string            `yaml:"doc_type"`
		Metadata   map[string]string `yaml:"metadata"`
	} `yaml:"documents"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	var file ingestFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}
	if len(file.Documents) == 0 {
		return fmt.Errorf("%s contains no documents", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := vectorstore.New(ctx, cfg.Store, cfg.Embeddings.Dimension, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating vector store: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimension:  cfg.Embeddings.Dimension,
		MaxChars:   cfg.Embeddings.MaxChars,
		BatchSize:  cfg.Embeddings.BatchSize,
		MaxRetries: cfg.Embeddings.MaxRetries,
		Timeout:    cfg.Embeddings.RequestTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing embedding service: %w", err)
	}

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("initializing chunker: %w", err)
	}
	pipeline := ingest.NewPipeline(splitter, embedder, store, logger)

	reqs := make([]ingest.IngestRequest, len(file.Documents))
	for i, doc := range file.Documents {
		reqs[i] = ingest.IngestRequest{
			Title:      doc.Title,
			Content:    doc.Content,
			Source:     doc.Source,
			Subject:    doc.Subject,
			GradeLevel: doc.GradeLevel,
			DocType:    doc.DocType,
			Metadata:   doc.Metadata,
		}
	}

	result := pipeline.BulkIngest(ctx, reqs)
	for _, item := range result.Items {
		if item.Error != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAILED  %-40s %s\n", item.Title, item.Error)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "ok      %-40s %s (%d chunks)\n", item.Title, item.DocumentID, item.ChunksCreated)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d ingested, %d failed\n", result.Successful, result.Failed)

	logger.Info("bulk ingest finished",
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
	)
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", result.Failed, len(reqs))
	}
	return nil
}
