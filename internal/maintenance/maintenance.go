// Package maintenance keeps the SQLite file compact and checks its health.
package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sydlexius/anisongdb/internal/database"
)

// ErrCorrupt is returned when SQLite's quick check reports problems.
var ErrCorrupt = errors.New("database failed integrity check")

// Status describes the database file.
type Status struct {
	SchemaVersion  int64      `json:"schema_version"`
	DBFileSize     int64      `json:"db_file_size"`
	WALFileSize    int64      `json:"wal_file_size"`
	PageCount      int64      `json:"page_count"`
	PageSize       int64      `json:"page_size"`
	FreelistCount  int64      `json:"freelist_count"`
	LastOptimizeAt *time.Time `json:"last_optimize_at,omitempty"`
	IntervalHours  int        `json:"schedule_interval_hours"`
}

// Service provides database maintenance operations.
type Service struct {
	db            *sql.DB
	dbPath        string
	intervalHours int
	logger        *slog.Logger

	mu           sync.Mutex
	lastOptimize time.Time
}

// NewService creates a maintenance service. intervalHours is reported in
// Status and used by StartScheduler; zero means no scheduled runs.
func NewService(db *sql.DB, dbPath string, intervalHours int, logger *slog.Logger) *Service {
	return &Service{
		db:            db,
		dbPath:        dbPath,
		intervalHours: intervalHours,
		logger:        logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns file sizes and page statistics.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{IntervalHours: s.intervalHours}

	if fi, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = fi.Size()
	}
	if fi, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = fi.Size()
	}

	pragmas := []struct {
		name string
		dst  *int64
	}{
		{"page_count", &st.PageCount},
		{"page_size", &st.PageSize},
		{"freelist_count", &st.FreelistCount},
	}
	for _, p := range pragmas {
		if err := s.db.QueryRowContext(ctx, "PRAGMA "+p.name).Scan(p.dst); err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.name, err)
		}
	}

	v, err := database.SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = v

	s.mu.Lock()
	if !s.lastOptimize.IsZero() {
		t := s.lastOptimize
		st.LastOptimizeAt = &t
	}
	s.mu.Unlock()
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a truncating WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	s.mu.Lock()
	s.lastOptimize = time.Now().UTC()
	s.mu.Unlock()
	s.logger.Info("optimize complete", slog.Duration("duration", time.Since(start)))
	return nil
}

// QuickCheck runs PRAGMA quick_check and returns ErrCorrupt with the
// reported problems if the database is damaged.
func (s *Service) QuickCheck(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("PRAGMA quick_check: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("reading quick_check result: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading quick_check result: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(problems, "; "))
	}
	return nil
}

// Vacuum rebuilds the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// StartScheduler runs Optimize every interval hours until ctx is canceled.
// It returns at once when no interval is configured.
func (s *Service) StartScheduler(ctx context.Context) {
	if s.intervalHours <= 0 {
		s.logger.Info("maintenance scheduler disabled")
		return
	}
	interval := time.Duration(s.intervalHours) * time.Hour
	s.logger.Info("maintenance scheduler started", slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Optimize(ctx); err != nil {
				s.logger.Error("scheduled optimize failed", slog.Any("error", err))
			}
		}
	}
}
