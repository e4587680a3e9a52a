// Package backup writes and rotates point-in-time copies of the database.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix = "anisongdb-"
	timeLayout = "20060102-150405"
)

// backupPattern matches anisongdb-YYYYMMDD-HHMMSS[-label].db.
var backupPattern = regexp.MustCompile(`^anisongdb-(\d{8}-\d{6})(?:-([a-z0-9]+))?\.db$`)

// labelPattern restricts labels to what backupPattern accepts.
var labelPattern = regexp.MustCompile(`^[a-z0-9]*$`)

// ErrInvalidName is returned for labels or filenames that do not follow the
// backup naming scheme.
var ErrInvalidName = errors.New("invalid backup name")

// Info describes one backup file.
type Info struct {
	Filename  string    `json:"filename"`
	Label     string    `json:"label,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Retention bounds how many backups are kept. Zero values disable the
// corresponding rule.
type Retention struct {
	MaxCount   int
	MaxAgeDays int
}

// Service manages database backups.
type Service struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	retention Retention
}

// NewService creates a backup service writing into dir.
func NewService(db *sql.DB, dir string, retention Retention, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		dir:       dir,
		retention: retention,
		logger:    logger.With(slog.String("component", "backup")),
		now:       time.Now,
	}
}

// Dir returns the backup directory.
func (s *Service) Dir() string { return s.dir }

// Backup snapshots the database with VACUUM INTO. label is optional and
// marks why the backup was taken, for example "preimport".
func (s *Service) Backup(ctx context.Context, label string) (*Info, error) {
	if !labelPattern.MatchString(label) {
		return nil, fmt.Errorf("%w: label %q", ErrInvalidName, label)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	created := s.now().UTC().Truncate(time.Second)
	filename := filePrefix + created.Format(timeLayout)
	if label != "" {
		filename += "-" + label
	}
	filename += ".db"
	dest := filepath.Join(s.dir, filename)

	s.logger.Info("starting backup", slog.String("dest", dest))
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO %s: %w", dest, err)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}
	s.logger.Info("backup complete", slog.String("filename", filename), slog.Int64("size", fi.Size()))
	return &Info{Filename: filename, Label: label, Size: fi.Size(), CreatedAt: created}, nil
}

// List returns the backups in the directory, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := backupPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		created, err := time.Parse(timeLayout, m[1])
		if err != nil {
			created = fi.ModTime().UTC()
		}
		out = append(out, Info{Filename: entry.Name(), Label: m[2], Size: fi.Size(), CreatedAt: created})
	}

	slices.SortFunc(out, func(a, b Info) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Filename, a.Filename)
	})
	return out, nil
}

// Delete removes one backup file.
func (s *Service) Delete(filename string) error {
	if !ValidFilename(filename) {
		return fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil { //nolint:gosec // G304: filename validated above
		return fmt.Errorf("removing backup: %w", err)
	}
	s.logger.Info("backup deleted", slog.String("filename", filename))
	return nil
}

// SetRetention replaces the retention rules used by Prune.
func (s *Service) SetRetention(r Retention) {
	s.mu.Lock()
	s.retention = r
	s.mu.Unlock()
	s.logger.Info("backup retention updated", slog.Int("max_count", r.MaxCount), slog.Int("max_age_days", r.MaxAgeDays))
}

// Retention returns the retention rules in effect.
func (s *Service) Retention() Retention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

// Prune deletes backups beyond the newest MaxCount and those older than
// MaxAgeDays. It returns the names of the removed files.
func (s *Service) Prune() ([]string, error) {
	r := s.Retention()
	backups, err := s.List()
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if r.MaxAgeDays > 0 {
		cutoff = s.now().UTC().AddDate(0, 0, -r.MaxAgeDays)
	}

	var removed []string
	for i, b := range backups {
		overCount := r.MaxCount > 0 && i >= r.MaxCount
		tooOld := !cutoff.IsZero() && b.CreatedAt.Before(cutoff)
		if !overCount && !tooOld {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil {
			s.logger.Warn("failed to remove old backup", slog.String("filename", b.Filename), slog.Any("error", err))
			continue
		}
		removed = append(removed, b.Filename)
		s.logger.Info("pruned backup",
			slog.String("filename", b.Filename),
			slog.Bool("over_count", overCount),
			slog.Bool("too_old", tooOld))
	}
	return removed, nil
}

// ValidFilename reports whether filename is a bare backup file name.
func ValidFilename(filename string) bool {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return false
	}
	return backupPattern.MatchString(filename)
}
