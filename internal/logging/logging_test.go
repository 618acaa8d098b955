package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSetupWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "info",
		FilePath:      filepath.Join(dir, "falconeye.log"),
		MaxSizeMB:     10,
		MaxFiles:      3,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	logger.Info("indexing started", slog.String("project_id", "p1"))
	cleanup()

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) == 0 {
		t.Fatal("expected at least one log line")
	}
	var line map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &line); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if line["msg"] != "indexing started" {
		t.Errorf("msg = %v, want 'indexing started'", line["msg"])
	}
	if line["project_id"] != "p1" {
		t.Errorf("project_id = %v, want p1", line["project_id"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for input, want := range cases {
		if got := LevelFromString(input); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestCorrelationAttrs(t *testing.T) {
	c := Correlation{CommandID: "cmd-1", ProjectID: "proj-1", FilePath: "a/b.go"}
	attrs := c.Attrs()
	if len(attrs) != 3 {
		t.Fatalf("Attrs() returned %d entries, want 3", len(attrs))
	}
}

func TestCorrelationAttrsOmitsEmptyFields(t *testing.T) {
	c := Correlation{ProjectID: "proj-1"}
	attrs := c.Attrs()
	if len(attrs) != 1 {
		t.Fatalf("Attrs() returned %d entries, want 1", len(attrs))
	}
}

func TestWithCorrelationRoundTrip(t *testing.T) {
	c := Correlation{CommandID: "cmd-1"}
	ctx := WithCorrelation(context.Background(), c)

	got := FromContext(ctx)
	if got.CommandID != "cmd-1" {
		t.Errorf("CommandID = %q, want cmd-1", got.CommandID)
	}
}

func TestFromCtxAttachesAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithCorrelation(context.Background(), Correlation{ProjectID: "p9"})
	logger := FromCtx(ctx, base)
	logger.Info("step done")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if line["project_id"] != "p9" {
		t.Errorf("project_id = %v, want p9", line["project_id"])
	}
}

func TestFromCtxWithoutCorrelationReturnsBase(t *testing.T) {
	base := slog.Default()
	logger := FromCtx(context.Background(), base)
	if logger != base {
		t.Error("expected FromCtx to return base logger unchanged when no correlation is set")
	}
}

func TestRotatingWriterRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotate.log")

	w, err := NewRotatingWriter(path, 0, 2) // 0 MB -> rotates on first write beyond header bytes
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("a line of log output\n")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file %s.1 to exist: %v", path, err)
	}
}
