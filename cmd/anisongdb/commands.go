package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sydlexius/anisongdb/internal/artist"
	"github.com/sydlexius/anisongdb/internal/backup"
	"github.com/sydlexius/anisongdb/internal/importer"
	"github.com/sydlexius/anisongdb/internal/song"
)

// runImport loads the JSON exports into the configured database, taking a
// backup first.
func runImport(songsPath, artistsPath string) error {
	cfg, _, logger, db, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backupService := backup.NewService(db, cfg.Backup.Path, backupRetention(cfg), logger)
	info, err := backupService.Backup(ctx, "preimport")
	if err != nil {
		return fmt.Errorf("backing up before import: %w", err)
	}
	logger.Info("pre-import backup written", slog.String("filename", info.Filename))

	artistService := artist.NewService(db)
	graph, err := artistService.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("loading artist graph: %w", err)
	}
	store := artist.NewStore(graph, artistService, nil, logger)

	start := time.Now()
	res, err := importer.New(store, song.NewService(db), nil, logger).ImportFiles(ctx, songsPath, artistsPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "imported %d artists, %d line-ups, %d memberships, %d anime, %d songs in %s\n",
		res.Artists, res.LineUps, res.Members, res.Animes, res.Songs, time.Since(start).Round(time.Millisecond))
	return nil
}

// runBackup writes a snapshot and applies the retention rules.
func runBackup() error {
	cfg, _, logger, db, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	backupService := backup.NewService(db, cfg.Backup.Path, backupRetention(cfg), logger)
	info, err := backupService.Backup(context.Background(), "")
	if err != nil {
		return err
	}
	removed, err := backupService.Prune()
	if err != nil {
		return fmt.Errorf("pruning backups: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s (%d bytes), pruned %d\n", info.Filename, info.Size, len(removed))
	return nil
}
