// Tutord is a retrieval-augmented tutoring daemon.
//
// It ingests teaching documents into a vector store, answers student
// questions grounded in retrieved material, and generates quizzes and
// grading through an ordered chain of chat providers.
//
// Usage:
//
//	# Start server with defaults
//	tutord serve
//
//	# Start with a config file
//	tutord serve --config /etc/tutord/config.yaml
//
//	# Configure via environment
//	TUTORD_SERVER_PORT=9090 TUTORD_STORE_BACKEND=chromem tutord serve
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/chunker"
	"github.com/fyrsmithlabs/tutord/internal/config"
	"github.com/fyrsmithlabs/tutord/internal/embeddings"
	"github.com/fyrsmithlabs/tutord/internal/httpapi"
	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/logging"
	"github.com/fyrsmithlabs/tutord/internal/providers"
	"github.com/fyrsmithlabs/tutord/internal/search"
	"github.com/fyrsmithlabs/tutord/internal/tutor"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tutord",
	Short: "Retrieval-augmented tutoring daemon",
	Long: `tutord ingests teaching documents into a vector store and serves
grounded tutoring responses, quizzes, and grading over HTTP.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tutord HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tutord by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// run wires the full service stack and blocks until ctx is canceled.
func run(ctx context.Context) error {
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

	logger.Info("starting tutord",
		zap.String("version", version),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Int("port", cfg.Server.Port),
	)

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

	orchestrator, err := providers.NewFromConfig(cfg.Providers, logger)
	if err != nil {
		return fmt.Errorf("initializing providers: %w", err)
	}
	logger.Info("provider chain configured", zap.Strings("order", orchestrator.Providers()))

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("initializing chunker: %w", err)
	}

	pipeline := ingest.NewPipeline(splitter, embedder, store, logger)
	searcher := search.NewService(embedder, store, search.Config{
		Limit:           cfg.Search.Limit,
		SimilarityFloor: cfg.Search.SimilarityFloor,
	}, logger)
	tutorSvc := tutor.NewService(searcher, orchestrator, logger)

	server, err := httpapi.NewServer(httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, pipeline, searcher, tutorSvc, orchestrator, store, logger)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
