package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/hanifmn/cveval/internal/api"
	"github.com/hanifmn/cveval/internal/config"
	"github.com/hanifmn/cveval/internal/docstore"
	"github.com/hanifmn/cveval/internal/eval"
	"github.com/hanifmn/cveval/internal/llm"
	"github.com/hanifmn/cveval/internal/pipeline"
	"github.com/hanifmn/cveval/internal/queue"
	"github.com/hanifmn/cveval/internal/retrieval"
	"github.com/hanifmn/cveval/internal/retry"
	"github.com/hanifmn/cveval/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the evaluation server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "cveval version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	docs, err := docstore.NewLocal(filepath.Join(cfg.DataDir, "docs"))
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}

	gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("initializing gemini: %w", err)
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryAttempts
	policy.BaseDelay = cfg.RetryBaseDelay

	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(gemini, vectorStore, policy, cfg.RetrievalTopK, logger)
	engine := pipeline.New(store, docs, gemini, retriever, policy, logger)

	pool, err := queue.New(cfg.Workers, logger)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	service := eval.NewService(store, docs, pool, engine, logger)

	handler := api.NewHandler(api.Deps{Service: service, Docs: docs})
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	if cfg.MaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConns)
	}

	if cfg.MCPEnabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Service: service, Retriever: retriever})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cveval listening", "addr", cfg.ListenAddr, "workers", cfg.Workers)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
