package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/anisongdb/internal/api"
	"github.com/sydlexius/anisongdb/internal/api/middleware"
	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/backup"
	"github.com/sydlexius/anisongdb/internal/config"
	"github.com/sydlexius/anisongdb/internal/database"
	"github.com/sydlexius/anisongdb/internal/event"
	"github.com/sydlexius/anisongdb/internal/logging"
	"github.com/sydlexius/anisongdb/internal/maintenance"
	"github.com/sydlexius/anisongdb/internal/resolver"
	"github.com/sydlexius/anisongdb/internal/song"
	"github.com/sydlexius/anisongdb/internal/watcher"
)

const usage = `usage: anisongdb [command]

commands:
  serve                           run the HTTP server (default)
  import <songs.json> <artists.json>
                                  load the JSON exports into an empty database
  backup                          snapshot the database and prune old backups
`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = run()
	case "import":
		if len(os.Args) != 4 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = runImport(os.Args[2], os.Args[3])
	case "backup":
		err = runBackup()
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	if p := os.Getenv("ASDB_CONFIG_PATH"); p != "" {
		return p
	}
	return "/data/config.yaml"
}

// openDatabase loads the configuration, sets up logging and opens the
// migrated database. The returned cleanup closes both.
func openDatabase() (*config.Config, *logging.Manager, *slog.Logger, *sql.DB, func(), error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(cfg.Logging)
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logManager.Close() //nolint:errcheck
		return nil, nil, nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	applied, err := database.MigrateContext(context.Background(), db)
	if err != nil {
		db.Close()         //nolint:errcheck
		logManager.Close() //nolint:errcheck
		return nil, nil, nil, nil, nil, err
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path), slog.Any("migrations_applied", applied))

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
		logManager.Close() //nolint:errcheck
	}
	return cfg, logManager, logger, db, cleanup, nil
}

func run() error {
	cfg, logManager, logger, db, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	eventBus := event.NewBus(logger, 256)
	go eventBus.Start()
	defer eventBus.Stop()
	eventBus.SubscribeAll(func(e event.Event) {
		logger.Debug("event", "type", string(e.Type), "event_id", e.ID, "data", e.Data)
	})

	artistService := artist.NewService(db)
	songService := song.NewService(db)
	artistStore := artist.NewStore(nil, artistService, eventBus, logger)
	corpus := song.NewCache(songService.LoadCorpus, cfg.Search.CacheTTL, eventBus, logger)
	corpus.InvalidateOn(eventBus, event.DatabaseChanged)

	maintenanceService := maintenance.NewService(db, cfg.Database.Path, cfg.Maintenance.IntervalHours, logger)
	backupService := backup.NewService(db, cfg.Backup.Path, backupRetention(cfg), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := maintenanceService.QuickCheck(ctx); err != nil {
		return fmt.Errorf("checking database: %w", err)
	}

	// Load the artist graph and the song corpus in parallel.
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		graph, err := artistService.LoadGraph(gctx)
		if err != nil {
			return fmt.Errorf("loading artist graph: %w", err)
		}
		artistStore.Reset(graph)
		return nil
	})
	g.Go(func() error {
		_, err := corpus.Refresh(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("snapshots loaded",
		slog.Int("artists", artistStore.Snapshot().Len()),
		slog.Duration("duration", time.Since(start)))

	go maintenanceService.StartScheduler(ctx)

	if cfg.Watch.Enabled {
		reload := func(ctx context.Context) error {
			return reloadGraph(ctx, db, maintenanceService, artistService, artistStore, corpus, eventBus)
		}
		watcherService := watcher.NewService(cfg.Database.Path, reload, eventBus, logger)
		watcherService.SetDebounce(cfg.Watch.Debounce)
		go watcherService.Start(ctx)
	}

	var searchLimiter *middleware.RateLimiter
	if cfg.Server.SearchRate > 0 {
		searchLimiter = middleware.NewRateLimiter(ctx, cfg.Server.SearchRate, cfg.Server.SearchBurst)
	}

	router := api.NewRouter(api.RouterDeps{
		ArtistStore:   artistStore,
		Corpus:        corpus,
		Resolver:      resolver.New(artistStore, corpus, cfg.Search.Threshold, logger),
		Maintenance:   maintenanceService,
		SearchLimiter: searchLimiter,
		EventBus:      eventBus,
		Logger:        logger,
		BasePath:      cfg.Server.BasePath,
		MaxResults:    cfg.Search.MaxResults,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go handleHangup(ctx, logManager, backupService, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadGraph reopens a replaced database file and swaps in its artist
// graph. The corpus is dropped here and reloaded on next use.
func reloadGraph(ctx context.Context, db *sql.DB, maint *maintenance.Service, svc *artist.Service,
	store *artist.Store, corpus *song.Cache, bus *event.Bus) error {
	database.Reconnect(db)
	if _, err := database.MigrateContext(ctx, db); err != nil {
		return err
	}
	if err := maint.QuickCheck(ctx); err != nil {
		return err
	}
	graph, err := svc.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("loading artist graph: %w", err)
	}
	store.Reset(graph)
	corpus.Invalidate()
	bus.Publish(event.Event{
		Type: event.GraphReloaded,
		Data: map[string]any{"artists": graph.Len()},
	})
	return nil
}

// handleHangup re-reads the configuration on SIGHUP and applies the
// settings that can change at runtime: logging and backup retention.
func handleHangup(ctx context.Context, logManager *logging.Manager, backups *backup.Service, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(configPath())
			if err != nil {
				logger.Error("reloading config", "error", err)
				continue
			}
			logManager.Reconfigure(cfg.Logging)
			backups.SetRetention(backupRetention(cfg))
			logger.Info("configuration reloaded", "logging", cfg.Logging.String())
		}
	}
}

func backupRetention(cfg *config.Config) backup.Retention {
	return backup.Retention{MaxCount: cfg.Backup.MaxCount, MaxAgeDays: cfg.Backup.MaxAgeDays}
}
