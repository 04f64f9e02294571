package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/subtitle-studio/workbench/internal/autosave"
	"github.com/subtitle-studio/workbench/internal/config"
	"github.com/subtitle-studio/workbench/internal/credentials"
	"github.com/subtitle-studio/workbench/internal/engine"
	"github.com/subtitle-studio/workbench/internal/httpapi"
	"github.com/subtitle-studio/workbench/internal/persistence"
	"github.com/subtitle-studio/workbench/internal/project"
	"github.com/subtitle-studio/workbench/internal/tm"
	"github.com/subtitle-studio/workbench/internal/translate"
	"github.com/subtitle-studio/workbench/internal/workspace"
	"github.com/subtitle-studio/workbench/pkg/log"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	cfg := config.NewFromEnv()
	log.InitLogger(log.ParseLevel(cfg.LogLevel))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal("Failed to create data dir %s: %v", cfg.DataDir, err)
	}

	store, err := persistence.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		log.Fatal("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initial, err := config.LoadSettingsFile(cfg.SettingsFile)
	if err != nil {
		log.Fatal("Failed to load settings: %v", err)
	}
	settings, err := config.NewSettingsStore(cfg.SettingsFile, initial)
	if err != nil {
		log.Fatal("Failed to init settings store: %v", err)
	}

	ws := workspace.New()
	if files, ok, err := store.LoadDraft(ctx); err != nil {
		log.Error("Failed to load draft, starting empty: %v", err)
	} else if ok {
		ws.Restore(files)
		log.Info("Restored draft with %d files", len(files))
	}

	memory := tm.New(ctx, store)
	rotator := credentials.NewRotator(settings)
	backend := translate.NewClient(cfg.APIURL, time.Duration(cfg.APITimeout)*time.Second)
	builder := project.NewBuilder()
	eng := engine.New(ws, settings, memory, rotator, backend, builder)

	server := httpapi.NewServer(ws, eng, settings, memory, builder, httpapi.WithLibrary(store))

	cronEngine := cron.New()
	autosaver := autosave.NewScheduler(ws, store, cfg.AutosaveCron, cronEngine)

	log.Info("Subtitle workbench listening on %s", cfg.ListenAddr)
	if err := runWithComponents(ctx, cfg, autosaver, cronEngine, server); err != nil {
		log.Fatal("Server error: %v", err)
	}

	// Final flush so the draft reflects the last edits.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := autosaver.RunOnce(flushCtx); err != nil {
		log.Error("Final autosave failed: %v", err)
	}
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	autosaver scheduler,
	cronEngine cronRunner,
	server httpServer,
) error {
	if err := autosaver.Schedule(ctx); err != nil {
		return err
	}
	cronEngine.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown error: %v", err)
		}
		<-cronEngine.Stop().Done()
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
