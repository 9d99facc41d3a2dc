package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/press-vault/internal/api"
	"github.com/press-vault/internal/blob"
	"github.com/press-vault/internal/config"
	"github.com/press-vault/internal/deploy"
	"github.com/press-vault/internal/githost"
	"github.com/press-vault/internal/ledger"
	"github.com/press-vault/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Press Vault starting...")

	// Initialize the ledger
	var led ledger.Ledger
	switch cfg.Ledger.Driver {
	case "postgres":
		led, err = ledger.NewPostgresLedger(cfg.Ledger.DSN)
	default:
		led, err = ledger.NewSQLiteLedger(cfg.Ledger.Path)
	}
	if err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}
	defer led.Close()

	log.Printf("Ledger initialized (%s)", cfg.Ledger.Driver)

	// Initialize the blob bucket
	var bucket blob.Bucket
	switch cfg.Blob.Backend {
	case "azure":
		bucket, err = blob.NewAzureBucket(cfg.Blob)
		if err != nil {
			log.Fatalf("Failed to initialize Azure bucket: %v", err)
		}
		log.Printf("Azure blob bucket initialized (%s/%s)", cfg.Blob.StorageAccount, cfg.Blob.Container)
	default:
		bucket = blob.NewMemoryBucket()
		log.Printf("In-memory blob bucket initialized")
	}

	st := store.New(led, bucket)
	orchestrator := deploy.New(st, cfg.Deploy)

	var gh *githost.Client
	if cfg.GitHost.Token != "" {
		gh = githost.New(cfg.GitHost.APIBaseURL, cfg.GitHost.Token, cfg.GitHost.Repository)
		log.Printf("Git hosting client initialized for %s", cfg.GitHost.Repository)
	}

	fetcherFor := rawContentFetcher(cfg.Deploy.RawContentBaseURL)

	// Initialize and start API server
	server := api.NewServer(cfg, st, orchestrator, gh, fetcherFor)

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutdown signal received, stopping services...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on http://%s", addr)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Press Vault stopped")
}

// rawContentFetcher builds per-push fetchers that read document bodies
// from the hosting service's raw-content endpoint at the pushed commit.
func rawContentFetcher(baseURL string) api.FetcherFactory {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(repository, sha string) deploy.FetchContentFunc {
		return func(ctx context.Context, path string) (string, error) {
			url := fmt.Sprintf("%s/%s/%s/%s", baseURL, repository, sha, path)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", err
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("fetch %s returned %d", path, resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(body), nil
		}
	}
}
