package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comigor/cryptosec-go/internal/agent"
	"github.com/comigor/cryptosec-go/internal/config"
	"github.com/comigor/cryptosec-go/internal/documents"
	"github.com/comigor/cryptosec-go/internal/llm"
	"github.com/comigor/cryptosec-go/internal/logger"
	"github.com/comigor/cryptosec-go/internal/server"
	"github.com/comigor/cryptosec-go/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration; a missing credential is fatal at startup.
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	// Initialize LLM transport
	transport := llm.NewTransport(llm.NewClient(cfg.LLM), cfg.LLM.Model, cfg.LLM.Timeout)

	docs := documents.Open(ctx, cfg.Documents.DBPath)
	if c, ok := docs.(io.Closer); ok {
		defer c.Close()
	}

	coordinator := agent.New(session.NewStore(), transport)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.New(coordinator, transport, docs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L.Warn("server shutdown error", "error", err)
		}
	}()

	logger.L.Info("starting server", "address", srv.Addr, "model", cfg.LLM.Model)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
