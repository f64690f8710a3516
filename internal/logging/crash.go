package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport is written as JSON when a recovered panic is handled.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandler turns panics in bus handlers into crash dumps instead of
// taking the engine process (and with it the user's input) down.
type CrashHandler struct {
	mu        sync.Mutex
	dir       string
	version   string
	component string
	log       *slog.Logger
	onCrash   func(CrashReport)
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// Dir is where crash dumps are written. Empty uses DefaultCrashDir.
	Dir string

	Version   string
	Component string
	Logger    *slog.Logger

	// OnCrash is called after a crash is logged.
	OnCrash func(CrashReport)
}

// DefaultCrashDir returns $XDG_STATE_HOME/ibus-bugtest/crashes.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(DefaultLogPath()), "crashes")
}

// NewCrashHandler creates a CrashHandler. The directory is created on the
// first crash.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	if cfg.Dir == "" {
		cfg.Dir = DefaultCrashDir()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CrashHandler{
		dir:       cfg.Dir,
		version:   cfg.Version,
		component: cfg.Component,
		log:       log,
		onCrash:   cfg.OnCrash,
	}
}

// Recover must be deferred directly. A nil handler lets the panic through.
//
//	defer h.Recover(map[string]any{"method": "ProcessKeyEvent"})
func (h *CrashHandler) Recover(contextInfo map[string]any) {
	if h == nil {
		return
	}
	if r := recover(); r != nil {
		h.HandlePanic(r, contextInfo)
	}
}

// RecoverError is Recover for functions with an error result. It must be
// deferred directly; the panic becomes *errp so the caller still fails.
//
//	defer h.RecoverError(&err, map[string]any{"phase": "run"})
func (h *CrashHandler) RecoverError(errp *error, contextInfo map[string]any) {
	if h == nil {
		return
	}
	if r := recover(); r != nil {
		path := h.HandlePanic(r, contextInfo)
		*errp = fmt.Errorf("recovered panic: %v (crash dump: %s)", r, path)
	}
}

// HandlePanic logs the panic, writes a crash dump and returns its path.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]any) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Context:      contextInfo,
	}

	path, err := h.writeCrashDump(report)
	if err != nil {
		h.log.Error("write crash dump failed", "error", err)
	}
	h.log.Error("recovered panic",
		"panic", report.PanicValue,
		"context", contextInfo,
		"dump", path)

	if h.onCrash != nil {
		h.onCrash(report)
	}
	return path
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json",
		report.Component,
		report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports reads back the dumps in the crash directory.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}
