package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if got := LevelString(test.level); got != test.expected {
				t.Errorf("expected %q, got %q", test.expected, got)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected default format Text, got %v", cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "ibus-bugtest" {
		t.Errorf("expected component ibus-bugtest, got %s", cfg.Component)
	}
	if cfg.FilePath != "/tmp/state/ibus-bugtest/ibus-bugtest.log" {
		t.Errorf("unexpected file path %s", cfg.FilePath)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &Config{Level: LevelInfo, Component: "test"})

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %s", buf.String())
	}

	child := logger.WithComponent("child")
	logger.SetLevel(LevelDebug)
	if logger.GetLevel() != LevelDebug {
		t.Errorf("expected debug level, got %v", logger.GetLevel())
	}

	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("derived logger did not pick up level change: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "component=child") {
		t.Errorf("expected child component: %s", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &Config{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Component: "ibus-bugtest",
	})

	logger.Info("commit", "text", "C")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if entry["msg"] != "commit" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["component"] != "ibus-bugtest" {
		t.Errorf("unexpected component %v", entry["component"])
	}
	if entry["text"] != "C" {
		t.Errorf("unexpected text %v", entry["text"])
	}
}

func TestRedactKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &Config{
		Level:      LevelInfo,
		Format:     FormatJSON,
		RedactKeys: []string{"Text"},
	})

	logger.Info("surrounding", "text", "secret", "cursor", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["text"] != "[REDACTED]" {
		t.Errorf("text not redacted: %v", entry["text"])
	}
	if entry["cursor"] != float64(3) {
		t.Errorf("cursor changed: %v", entry["cursor"])
	}
}

func TestLoggerNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	logger, err := New(&Config{
		Level:    LevelInfo,
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("hello")
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func newTestRotator(t *testing.T, compress bool, backups int) (*FileRotator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.log")
	r, err := NewFileRotator(&Config{
		FilePath:   path,
		MaxSize:    1,
		MaxBackups: backups,
		Compress:   compress,
	})
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	r.maxBytes = 16

	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	t.Cleanup(func() { r.Close() })
	return r, path
}

func TestFileRotatorRotation(t *testing.T) {
	r, path := newTestRotator(t, false, 0)

	for _, line := range []string{"0123456789\n", "abcdefghij\n", "klmnopqrst\n"} {
		if _, err := io.WriteString(r, line); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	backups, err := r.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %v", backups)
	}

	first, _ := os.ReadFile(backups[0])
	if string(first) != "0123456789\n" {
		t.Errorf("oldest backup = %q", first)
	}
	current, _ := os.ReadFile(path)
	if string(current) != "klmnopqrst\n" {
		t.Errorf("current file = %q", current)
	}
}

func TestFileRotatorMaxBackups(t *testing.T) {
	r, _ := newTestRotator(t, false, 1)

	for i := 0; i < 4; i++ {
		if _, err := io.WriteString(r, "0123456789\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	backups, _ := r.Backups()
	if len(backups) != 1 {
		t.Errorf("expected 1 backup after pruning, got %v", backups)
	}
}

func TestFileRotatorCompress(t *testing.T) {
	r, _ := newTestRotator(t, true, 0)

	io.WriteString(r, "0123456789\n")
	io.WriteString(r, "abcdefghij\n")

	backups, _ := r.Backups()
	if len(backups) != 1 || !strings.HasSuffix(backups[0], ".gz") {
		t.Fatalf("expected one gzip backup, got %v", backups)
	}

	f, err := os.Open(backups[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	data, _ := io.ReadAll(gz)
	if string(data) != "0123456789\n" {
		t.Errorf("decompressed = %q", data)
	}
}

func TestCrashHandlerRecover(t *testing.T) {
	dir := t.TempDir()
	var got CrashReport
	h := NewCrashHandler(CrashHandlerConfig{
		Dir:       dir,
		Version:   "1.0.0",
		Component: "ibus-bugtest",
		OnCrash:   func(r CrashReport) { got = r },
	})

	func() {
		defer h.Recover(map[string]any{"method": "ProcessKeyEvent"})
		panic(errors.New("boom"))
	}()

	if got.PanicValue != "boom" {
		t.Errorf("unexpected panic value %q", got.PanicValue)
	}
	if got.Context["method"] != "ProcessKeyEvent" {
		t.Errorf("unexpected context %v", got.Context)
	}

	reports, err := h.CrashReports()
	if err != nil {
		t.Fatalf("CrashReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].Version != "1.0.0" || reports[0].StackTrace == "" {
		t.Errorf("incomplete report: %+v", reports[0])
	}
}

func TestCrashHandlerRecoverError(t *testing.T) {
	h := NewCrashHandler(CrashHandlerConfig{Dir: t.TempDir(), Component: "ibus-bugtest"})

	run := func() (err error) {
		defer h.RecoverError(&err, map[string]any{"phase": "run"})
		panic("boom")
	}

	err := run()
	if err == nil {
		t.Fatal("recovered panic must surface as an error")
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "crash-ibus-bugtest-") {
		t.Errorf("unexpected error: %v", err)
	}

	reports, _ := h.CrashReports()
	if len(reports) != 1 || reports[0].Context["phase"] != "run" {
		t.Errorf("unexpected reports: %+v", reports)
	}
}

func TestCrashHandlerRecoverErrorKeepsResult(t *testing.T) {
	h := NewCrashHandler(CrashHandlerConfig{Dir: t.TempDir()})
	want := errors.New("bus closed")

	run := func() (err error) {
		defer h.RecoverError(&err, nil)
		return want
	}

	if err := run(); err != want {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestCrashHandlerNilPassesPanic(t *testing.T) {
	var h *CrashHandler
	defer func() {
		if recover() == nil {
			t.Error("nil handler swallowed the panic")
		}
	}()
	func() {
		defer h.Recover(nil)
		panic("boom")
	}()
}
