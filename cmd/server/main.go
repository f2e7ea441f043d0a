// Package main runs the escrow gateway: HTTP endpoints for wallet balances,
// batch token metadata and the escrow list, with the list kept fresh by a
// program log watcher.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sol "github.com/gagliardetto/solana-go"

	"escrow-gateway/internal/balance"
	"escrow-gateway/internal/escrow"
	"escrow-gateway/internal/escrow/anchorclient"
	"escrow-gateway/internal/httpapi"
	"escrow-gateway/internal/metadata"
	"escrow-gateway/internal/solana"
	"escrow-gateway/internal/storage"
	memstore "escrow-gateway/internal/storage/memory"
	pgstore "escrow-gateway/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory metadata cache instead of PostgreSQL")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	escrowProgram := flag.String("escrow-program", os.Getenv("ESCROW_PROGRAM_ID"), "Escrow program ID")
	keypairPath := flag.String("keypair", os.Getenv("KEYPAIR_PATH"), "Path to the signer keypair file")
	metadataTTL := flag.Duration("metadata-ttl", metadata.DefaultTTL, "Token metadata cache TTL")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *escrowProgram == "" {
		logger.Fatal("--escrow-program is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory caching)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metadata cache store
	var store storage.TokenMetaStore
	var storeCleanup func()
	if *useMemory {
		logger.Println("Using in-memory metadata cache")
		store = memstore.NewTokenMetaStore()
		storeCleanup = func() {}
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		store = pgstore.NewTokenMetaStore(pool)
		storeCleanup = pool.Close
	}
	defer storeCleanup()

	// Signer for escrow submissions
	signer, err := loadSigner(*keypairPath, logger)
	if err != nil {
		logger.Fatalf("Failed to load keypair: %v", err)
	}

	// Core components
	rpcClient := solana.NewHTTPClient(*rpcEndpoint)
	aggregator := balance.NewAggregator(rpcClient, log.New(os.Stdout, "[balance] ", log.LstdFlags|log.Lshortfile))
	resolver := metadata.NewResolver(rpcClient, store, metadata.WithTTL(*metadataTTL))

	programClient, err := anchorclient.New(*rpcEndpoint, *escrowProgram, signer)
	if err != nil {
		logger.Fatalf("Failed to create program client: %v", err)
	}
	escrowService := escrow.NewService(programClient, log.New(os.Stdout, "[escrow] ", log.LstdFlags|log.Lshortfile))

	// Initial escrow list; a failure here is not fatal, the watcher and
	// later refreshes will fill it.
	if err := escrowService.Refresh(ctx); err != nil {
		logger.Printf("Initial escrow list fetch failed: %v", err)
	}

	// Program log watcher keeps the escrow list fresh
	if *wsEndpoint != "" {
		watcher, err := solana.NewWSWatcher(ctx, *wsEndpoint, *escrowProgram, nil)
		if err != nil {
			logger.Printf("Program log watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
			go escrowService.Watch(ctx, watcher.Notifications())
			logger.Printf("Watching program %s for escrow activity", *escrowProgram)
		}
	} else {
		logger.Println("No --ws-endpoint, escrow list refreshes only after settled actions")
	}

	server := httpapi.NewServer(*addr, aggregator, resolver, escrowService, logger)

	// Handle shutdown signals
	done := make(chan error, 1)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		done <- err
		logger.Fatalf("Server error: %v", err)
	}
	done <- nil

	logger.Println("Shutdown complete")
}

// loadSigner loads the submission keypair, or generates an ephemeral one when
// no path is configured. An ephemeral signer can list escrows but its
// submissions will be rejected on chain.
func loadSigner(path string, logger *log.Logger) (sol.PrivateKey, error) {
	if path == "" {
		logger.Println("No --keypair configured, using an ephemeral signer")
		return sol.NewWallet().PrivateKey, nil
	}
	return sol.PrivateKeyFromSolanaKeygenFile(path)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
