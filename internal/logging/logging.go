// Package logging builds the process-wide slog handler and lets it be
// reconfigured while the server runs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults applied when a log file is configured without limits.
const (
	defaultMaxSizeMB  = 50
	defaultMaxFiles   = 5
	defaultMaxAgeDays = 14
)

// Config is the logging section of the application configuration.
type Config struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	// Output selects the console stream: "stdout" or "stderr".
	Output         string `yaml:"output" json:"output"`
	FilePath       string `yaml:"file_path" json:"file_path,omitempty"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb" json:"file_max_size_mb,omitempty"`
	FileMaxFiles   int    `yaml:"file_max_files" json:"file_max_files,omitempty"`
	FileMaxAgeDays int    `yaml:"file_max_age_days" json:"file_max_age_days,omitempty"`
	FileCompress   bool   `yaml:"file_compress" json:"file_compress,omitempty"`
}

// DefaultConfig returns JSON logging at info level on stdout.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		Output:         "stdout",
		FileMaxSizeMB:  defaultMaxSizeMB,
		FileMaxFiles:   defaultMaxFiles,
		FileMaxAgeDays: defaultMaxAgeDays,
	}
}

// Validate checks the level, format and output names.
func (c Config) Validate() error {
	if _, ok := levels[strings.ToLower(c.Level)]; !ok {
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	switch strings.ToLower(c.Output) {
	case "", "stdout", "stderr":
	default:
		return fmt.Errorf("unknown log output %q", c.Output)
	}
	if c.FileMaxSizeMB < 0 || c.FileMaxFiles < 0 || c.FileMaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}
	return nil
}

func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s output=%s", c.Level, c.Format, c.console())
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return s
}

func (c Config) console() string {
	if strings.EqualFold(c.Output, "stderr") {
		return "stderr"
	}
	return "stdout"
}

// sameOutput reports whether two configs write to the same place in the same
// format, so only the level differs.
func (c Config) sameOutput(o Config) bool {
	return strings.EqualFold(c.Format, o.Format) &&
		c.console() == o.console() &&
		c.FilePath == o.FilePath &&
		c.FileMaxSizeMB == o.FileMaxSizeMB &&
		c.FileMaxFiles == o.FileMaxFiles &&
		c.FileMaxAgeDays == o.FileMaxAgeDays &&
		c.FileCompress == o.FileCompress
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

// SwappableHandler forwards to a handler that can be replaced at runtime.
// Handlers derived with WithAttrs or WithGroup share the swap point and
// replay their attributes and groups onto the current handler, so loggers
// created with With follow every Swap.
type SwappableHandler struct {
	root  *swapRoot
	ops   []handlerOp
	built atomic.Pointer[builtHandler]
}

type swapRoot struct {
	current atomic.Pointer[swapState]
}

type swapState struct {
	handler slog.Handler
	gen     uint64
}

// handlerOp is one WithGroup (group set) or WithAttrs call.
type handlerOp struct {
	group string
	attrs []slog.Attr
}

type builtHandler struct {
	handler slog.Handler
	gen     uint64
}

// NewSwappableHandler wraps h.
func NewSwappableHandler(h slog.Handler) *SwappableHandler {
	root := &swapRoot{}
	root.current.Store(&swapState{handler: h})
	return &SwappableHandler{root: root}
}

// Swap replaces the wrapped handler for this handler and every handler
// derived from the same root.
func (s *SwappableHandler) Swap(h slog.Handler) {
	for {
		old := s.root.current.Load()
		if s.root.current.CompareAndSwap(old, &swapState{handler: h, gen: old.gen + 1}) {
			return
		}
	}
}

// load returns the current handler with this handler's groups and
// attributes applied, rebuilding it after a swap.
func (s *SwappableHandler) load() slog.Handler {
	st := s.root.current.Load()
	if b := s.built.Load(); b != nil && b.gen == st.gen {
		return b.handler
	}
	h := st.handler
	for _, op := range s.ops {
		if op.group != "" {
			h = h.WithGroup(op.group)
		} else {
			h = h.WithAttrs(op.attrs)
		}
	}
	s.built.Store(&builtHandler{handler: h, gen: st.gen})
	return h
}

func (s *SwappableHandler) derive(op handlerOp) *SwappableHandler {
	ops := make([]handlerOp, len(s.ops), len(s.ops)+1)
	copy(ops, s.ops)
	return &SwappableHandler{root: s.root, ops: append(ops, op)}
}

func (s *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.load().Enabled(ctx, level)
}

func (s *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.load().Handle(ctx, r)
}

func (s *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return s
	}
	return s.derive(handlerOp{attrs: append([]slog.Attr(nil), attrs...)})
}

func (s *SwappableHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return s.derive(handlerOp{group: name})
}

// Manager owns the root handler and its log file.
type Manager struct {
	mu      sync.Mutex
	level   *slog.LevelVar
	handler *SwappableHandler
	config  Config
	file    io.Closer
}

// NewManager builds the handler for cfg and returns the manager with the
// root logger.
func NewManager(cfg Config) (*Manager, *slog.Logger) {
	m := &Manager{level: &slog.LevelVar{}, config: cfg}
	m.level.Set(ParseLevel(cfg.Level))

	w, file := openWriter(cfg)
	m.file = file
	m.handler = NewSwappableHandler(newHandler(w, m.level, cfg.Format))
	return m, slog.New(m.handler)
}

// Reconfigure applies cfg. A level change takes effect immediately; any
// other change rebuilds the handler and reopens the log file.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level.Set(ParseLevel(cfg.Level))
	if !cfg.sameOutput(m.config) {
		if m.file != nil {
			m.file.Close() //nolint:errcheck
		}
		w, file := openWriter(cfg)
		m.file = file
		m.handler.Swap(newHandler(w, m.level, cfg.Format))
	}
	m.config = cfg
}

// Config returns the configuration in effect.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Level returns the current minimum level.
func (m *Manager) Level() slog.Level { return m.level.Level() }

// Close closes the log file, if any. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// openWriter returns the console stream, teed into a rotating file when a
// file path is set. The closer is the file writer.
func openWriter(cfg Config) (io.Writer, io.Closer) {
	var console io.Writer = os.Stdout
	if cfg.console() == "stderr" {
		console = os.Stderr
	}
	if cfg.FilePath == "" {
		return console, nil
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    orDefault(cfg.FileMaxSizeMB, defaultMaxSizeMB),
		MaxBackups: orDefault(cfg.FileMaxFiles, defaultMaxFiles),
		MaxAge:     orDefault(cfg.FileMaxAgeDays, defaultMaxAgeDays),
		Compress:   cfg.FileCompress,
	}
	return io.MultiWriter(console, lj), lj
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func newHandler(w io.Writer, level slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
