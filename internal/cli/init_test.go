package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"syscall"
	"testing"
	"time"

	"insights/internal/config"
	applog "insights/internal/log"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"}, applog.ComponentWorker)
	if logger.Component() != applog.ComponentWorker {
		t.Errorf("Component() = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not applied")
	}
	if slog.Default() != logger.Logger {
		t.Error("logger not installed as slog default")
	}
}

func TestSignalContext(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})

	ctx, cancel := SignalContext(logger)
	defer cancel()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}

	// The log line is written before cancel, so it is visible once Done fires.
	if !strings.Contains(buf.String(), "Shutdown signal received") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestSignalContext_CancelStopsWatcher(t *testing.T) {
	ctx, cancel := SignalContext(applog.Discard())
	cancel()
	<-ctx.Done()
}
