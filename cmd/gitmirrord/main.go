package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // embed CA certs for scratch containers

	githubadapter "github.com/ericfisherdev/gitmirror/internal/adapter/driven/github"
	"github.com/ericfisherdev/gitmirror/internal/adapter/driven/store"
	httphandler "github.com/ericfisherdev/gitmirror/internal/adapter/driving/http"
	"github.com/ericfisherdev/gitmirror/internal/adapter/driving/http/querycache"
	webhandler "github.com/ericfisherdev/gitmirror/internal/adapter/driving/web"
	"github.com/ericfisherdev/gitmirror/internal/application"
	"github.com/ericfisherdev/gitmirror/internal/config"
)

const projectorCatchUpInterval = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_dir", cfg.DBDir,
		"owners", len(cfg.Owners),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DBDir, 0o755); err != nil {
		return err
	}

	fileStore := store.NewFileStore(filepath.Join(cfg.DBDir, "content"))
	contentStore := store.NewCache(fileStore, store.DefaultCacheBytes)

	if err := contentStore.ReconcileAgainstConfig(ctx, cfg.Orgs, cfg.UserRepos, cfg.IndividualRepos); err != nil {
		return fmt.Errorf("reconcile store against configured targets: %w", err)
	}

	cacheDB, err := querycache.NewDB(filepath.Join(cfg.DBDir, "querycache.db"))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := cacheDB.Close(); closeErr != nil {
			slog.Error("error closing query cache database", "error", closeErr)
		}
	}()
	if err := querycache.RunMigrations(cacheDB.Writer); err != nil {
		return err
	}
	issueQuery := querycache.NewIssueQuery(cacheDB)
	projector := querycache.NewProjector(cacheDB, contentStore, slog.Default())
	go projector.Run(ctx, projectorCatchUpInterval)

	ghClient := githubadapter.NewClient(cfg.GitHubToken)

	queue := application.NewWorkQueue(cfg.Pacing)
	processed := application.NewProcessedSet()
	if err := processed.LoadFromStore(ctx, contentStore); err != nil {
		return fmt.Errorf("load processed events from store: %w", err)
	}

	workerPool := application.NewWorkerPool(queue, contentStore, ghClient, nil, slog.Default())
	workerPool.Start(ctx)

	scanner := application.NewEventScanner(ghClient, queue, processed, nil, slog.Default())
	scheduler := application.NewScheduler(queue, contentStore, processed, scanner, ghClient, cfg.SchedulerTargets, slog.Default())
	go scheduler.Run(ctx)

	apiHandler := httphandler.NewHandler(contentStore, issueQuery, scheduler, slog.Default())
	apiMux := httphandler.NewServeMux(apiHandler, cfg.PresharedKey, slog.Default())

	webHandler := webhandler.NewHandler(scheduler, slog.Default())
	mux := http.NewServeMux()
	mux.Handle("/api/v1/", apiMux)
	webhandler.RegisterRoutes(mux, webHandler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("gitmirror started", "listen_addr", cfg.ListenAddr, "owners", len(cfg.Owners))

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
