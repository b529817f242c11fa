package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/database/memory"
	"github.com/kozaktomas/face-sorter/internal/database/postgres"
	"github.com/kozaktomas/face-sorter/internal/extractor"
	"github.com/kozaktomas/face-sorter/internal/identity"
	"github.com/kozaktomas/face-sorter/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Sorter web server.
The web server provides a JSON API and a browser-based interface for
uploading photos, reviewing persons, correcting face assignments and
running bulk re-clustering.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// initFaceHNSW builds or loads the face HNSW index for fast similarity search.
func initFaceHNSW(ctx context.Context, store *postgres.Store, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading face HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for face matching...\n")
	}
	if err := store.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build face HNSW index: %v\n", err)
		fmt.Printf("Face matching will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Face HNSW index ready with %d faces (persisted to %s)\n", store.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Face HNSW index built with %d faces (in-memory only)\n", store.HNSWCount())
	}
}

// initServeBackend picks the storage backend for the serve command:
// PostgreSQL when DATABASE_URL is set, the in-memory store otherwise.
func initServeBackend(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.URL == "" {
		store := memory.New()
		database.RegisterBackend("memory", func() database.Store { return store })
		fmt.Println("Using in-memory backend (DATABASE_URL not set, data is lost on restart)")
		return nil
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	fmt.Printf("Using PostgreSQL backend\n")

	initFaceHNSW(ctx, postgres.GetGlobalStore(), cfg.Database.HNSWIndexPath)
	return nil
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// saveHNSWIndex saves the face HNSW index to disk during shutdown.
func saveHNSWIndex() {
	rebuilder := database.GetFaceHNSWRebuilder()
	if rebuilder == nil {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		fmt.Printf("Warning: failed to save face HNSW index: %v\n", err)
	} else {
		fmt.Println("Face HNSW index saved to disk")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	if err := initServeBackend(ctx, cfg); err != nil {
		return err
	}

	policy, err := defaultPolicy(cfg)
	if err != nil {
		return err
	}

	store, err := database.GetStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to get store: %w", err)
	}
	engine := identity.NewEngine(store, policy)

	ex := extractor.New(cfg.Extractor.URL, time.Duration(cfg.Extractor.TimeoutSeconds)*time.Second)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, engine, ex, Version, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveHNSWIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Sorter on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
