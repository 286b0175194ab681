package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/app"
	httptransport "github.com/yungbote/neurobridge-backend/internal/http"
	"github.com/yungbote/neurobridge-backend/internal/observability"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

func main() {
	cfg := app.LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "evidence-graph",
		Environment: cfg.LogMode,
	})
	defer func() {
		if shutdownOTel != nil {
			_ = shutdownOTel(context.Background())
		}
	}()

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn("error closing app resources", "error", err)
		}
	}()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Log:       log,
		Health:    a.Handlers.Health,
		Workspace: a.Handlers.Workspace,
		Import:    a.Handlers.Import,
		ImportRun: a.Handlers.ImportRun,
		Entity:    a.Handlers.Entity,
	})

	srv := &http.Server{Addr: cfg.HTTPAddress, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown failed", "error", err)
		}
	}()

	log.Info("listening", "address", cfg.HTTPAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", "error", err)
		os.Exit(1)
	}
}
