package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/billbatista/acasinha-gifts/config"
	"github.com/billbatista/acasinha-gifts/eventlogger"
	"github.com/billbatista/acasinha-gifts/groupgift"
	"github.com/billbatista/acasinha-gifts/middleware"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		printErrorAndExit("loading config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, evtlogger, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		printErrorAndExit("opening store", err)
	}
	defer closeStore()

	worker := eventlogger.NewWorker(evtlogger, cfg.EventBuffer, logger)
	worker.Start()
	defer worker.Shutdown()

	svc := groupgift.NewService(
		repo,
		groupgift.WithNotifier(eventlogger.NewNotifier(worker)),
		groupgift.WithLogger(logger),
		groupgift.WithDefaultDeadline(cfg.DefaultDeadline()),
	)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimw.Recoverer)
	router.Use(middleware.Identity)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Mount("/group-gifts", groupgift.NewHandler(svc, logger).Routes())
	if reader, ok := evtlogger.(eventlogger.EventReader); ok {
		router.Mount("/events", eventlogger.NewHandler(reader, logger).Routes())
	}

	server := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Addr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
	}
}

// openStore builds the campaign repository and the event sink for the configured backend.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (groupgift.Repository, eventlogger.EventLogger, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}

		repo := groupgift.NewPostgresRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		events := eventlogger.NewSQLEventLogger(db)
		if err := events.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return repo, events, func() { db.Close() }, nil

	case config.StoreSQLite:
		repo, err := groupgift.OpenSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, eventlogger.NewSlogEventLogger(logger), func() { repo.Close() }, nil

	default:
		return groupgift.NewMemoryRepository(), eventlogger.NewSlogEventLogger(logger), func() {}, nil
	}
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
