// Command seafhttp-upload is the standalone HTTP server exposing the
// streaming multipart upload receiver. It wires Config, a logger, a
// RepoClient against the configured repository back end, and a
// ProgressRegistry into net/http routes, then serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	upload "github.com/seafhttp/upload"
	"github.com/seafhttp/upload/config"
	"github.com/seafhttp/upload/repoclient"
	"github.com/seafhttp/upload/tokenauth"
)

func main() {
	logger := log.New(os.Stderr, "seafhttp-upload: ", log.LstdFlags)

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logger.Fatalf("configuration: %v", err)
	}

	if err := upload.SandboxTempDir(cfg.TempDir); err != nil {
		logger.Fatalf("sandboxing temp dir: %v", err)
	}

	client := repoclient.NewHTTPClient(cfg.RPCBaseURL, cfg.RPCToken)
	client.HTTPClient.Timeout = cfg.RPCTimeout

	var resolver tokenauth.Resolver
	if len(cfg.HMACSecret) > 0 {
		resolver = &tokenauth.SignedTokens{Secret: cfg.HMACSecret}
	} else {
		resolver = tokenauth.NewStaticTokens()
		logger.Printf("warning: no hmac-secret configured; falling back to an empty static token resolver")
	}

	registry := upload.NewProgressRegistry()

	lifecycle := upload.NewRequestLifecycle(resolver, client, registry, cfg.TempDir, cfg.ServiceURL, logger, cfg.MaxUploadSize, cfg.MaxContentLine)
	if len(cfg.HMACSecret) > 0 {
		// The same shared secret used to mint/verify per-link tokens
		// additionally signs the upload request itself, under the
		// fixed keyId "default" — an operator wiring up a signing
		// client only ever needs the one secret this process knows.
		lifecycle.Secrets = map[string][]byte{"default": cfg.HMACSecret}
		lifecycle.TimestampTolerance = cfg.TimestampTolerance
	}
	progressEndpoint := upload.NewProgressEndpoint(registry)

	mux := http.NewServeMux()
	mux.Handle("/upload/", lifecycle)
	mux.Handle("/update/", lifecycle)
	mux.Handle("/upload_progress", progressEndpoint)

	// Timeouts mirror a large-upload-friendly server: reads and writes
	// are not bounded by a fixed deadline, only by the client's own
	// pace and the max-upload-size check applied post-receipt.
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("serving: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("forced shutdown: %v", err)
	}
}
