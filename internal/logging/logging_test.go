package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDailyFile_RotatesByDate(t *testing.T) {
	dir := t.TempDir()
	df, err := NewDailyFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer df.Close()

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	df.now = func() time.Time { return day }
	if _, err := df.Write([]byte("one\n")); err != nil {
		t.Fatal(err)
	}
	day = day.Add(2 * time.Minute)
	if _, err := df.Write([]byte("two\n")); err != nil {
		t.Fatal(err)
	}

	for name, want := range map[string]string{
		"app-2026-03-01.log": "one\n",
		"app-2026-03-02.log": "two\n",
	} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestNew_JSONWithLogID(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger, closer, err := New(Options{Dir: dir, Console: true, Stderr: &console})
	if err != nil {
		t.Fatal(err)
	}
	logger.With("job_id", "j1").Info("capture finished", "pages", 3)
	logger.Debug("hidden")
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, FileName(time.Now())))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if rec["msg"] != "capture finished" || rec["level"] != "INFO" || rec["job_id"] != "j1" {
		t.Errorf("record = %v", rec)
	}
	if id, _ := rec["log_id"].(string); len(id) != 36 {
		t.Errorf("log_id = %v", rec["log_id"])
	}
	if !strings.Contains(console.String(), "capture finished") {
		t.Errorf("console = %q", console.String())
	}
}

func TestNew_NoConsole(t *testing.T) {
	logger, closer, err := New(Options{Dir: t.TempDir(), Level: slog.LevelWarn})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	if logger.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		day := base.AddDate(0, 0, i)
		path := filepath.Join(dir, FileName(day))
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, day, day); err != nil {
			t.Fatal(err)
		}
	}
	other := filepath.Join(dir, "notes.txt")
	os.WriteFile(other, nil, 0o644)

	if err := Cleanup(dir, 2); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{"app-2026-01-04.log", "app-2026-01-05.log", "notes.txt"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("remaining = %v, want %v", names, want)
	}
}

func TestReadDay(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "app-2026-02-03.log"), []byte("{}\n"), 0o644)

	if got, err := ReadDay(dir, "2026-02-03"); err != nil || string(got) != "{}\n" {
		t.Errorf("ReadDay = %q, %v", got, err)
	}
	if _, err := ReadDay(dir, "2026-02-04"); !errors.Is(err, ErrNoLog) {
		t.Errorf("missing day err = %v, want ErrNoLog", err)
	}
	for _, bad := range []string{"../../etc/passwd", "2026-13-01", "yesterday"} {
		if _, err := ReadDay(dir, bad); err == nil || errors.Is(err, ErrNoLog) {
			t.Errorf("ReadDay(%q) err = %v, want validation error", bad, err)
		}
	}
}
