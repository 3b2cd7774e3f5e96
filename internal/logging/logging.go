// Package logging writes structured application logs to one JSON-lines file
// per day and prunes old files.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxFiles is the number of daily files kept by Cleanup.
const DefaultMaxFiles = 30

// ErrNoLog is returned by ReadDay when no file exists for the day.
var ErrNoLog = errors.New("no log for that date")

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// FileName returns the log file name for the day containing t.
func FileName(t time.Time) string {
	return "app-" + t.Format(time.DateOnly) + ".log"
}

// DailyFile is an io.Writer appending to <dir>/app-YYYY-MM-DD.log, switching
// files when the local date changes. It is safe for concurrent use.
type DailyFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyFile creates dir if needed and returns a writer into it.
func NewDailyFile(dir string) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &DailyFile{dir: dir, now: time.Now}, nil
}

// Write appends p to the current day's file.
func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := FileName(d.now())
	if d.file == nil || name != d.day {
		if d.file != nil {
			d.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			d.file = nil
			return 0, fmt.Errorf("opening log file: %w", err)
		}
		d.file, d.day = f, name
	}
	return d.file.Write(p)
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Options configures New.
type Options struct {
	Dir   string
	Level slog.Level
	// Console additionally echoes records as text to Stderr.
	Console bool
	Stderr  io.Writer
}

// New returns a logger writing JSON records with a unique log_id to daily
// files under opts.Dir. The returned closer closes the current file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	df, err := NewDailyFile(opts.Dir)
	if err != nil {
		return nil, nil, err
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	var h slog.Handler = slog.NewJSONHandler(df, hopts)
	if opts.Console {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		h = fanout{h, slog.NewTextHandler(w, hopts)}
	}
	return slog.New(withLogID{h}), df, nil
}

// withLogID stamps every record with a random log_id.
type withLogID struct {
	slog.Handler
}

func (h withLogID) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(slog.String("log_id", uuid.NewString()))
	return h.Handler.Handle(ctx, r)
}

func (h withLogID) WithAttrs(attrs []slog.Attr) slog.Handler {
	return withLogID{h.Handler.WithAttrs(attrs)}
}

func (h withLogID) WithGroup(name string) slog.Handler {
	return withLogID{h.Handler.WithGroup(name)}
}

// fanout sends each record to every handler.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Cleanup keeps the keep most recently modified log files in dir and removes
// the rest.
func Cleanup(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type logFile struct {
		name string
		mod  time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "app-") || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{e.Name(), info.ModTime()})
	}
	if len(files) <= keep {
		return nil
	}
	slices.SortFunc(files, func(a, b logFile) int { return b.mod.Compare(a.mod) })

	var errs []error
	for _, f := range files[keep:] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadDay returns the contents of the log file for date (YYYY-MM-DD).
func ReadDay(dir, date string) ([]byte, error) {
	if !dateRe.MatchString(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName(t)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoLog
	}
	return data, err
}
