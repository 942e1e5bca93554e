package log

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLoggerHandlerByEnv(t *testing.T) {
	prod := newLogger("info", "production")
	if _, ok := prod.Handler().(*slog.JSONHandler); !ok {
		t.Errorf("production handler = %T, want JSON", prod.Handler())
	}

	dev := newLogger("info", "development")
	if _, ok := dev.Handler().(*slog.TextHandler); !ok {
		t.Errorf("development handler = %T, want text", dev.Handler())
	}

	blank := newLogger("info", "")
	if _, ok := blank.Handler().(*slog.TextHandler); !ok {
		t.Errorf("default handler = %T, want text", blank.Handler())
	}
}

func TestNewLoggerLevel(t *testing.T) {
	ctx := context.Background()

	debug := newLogger("debug", "")
	if !debug.Handler().Enabled(ctx, slog.LevelDebug) {
		t.Error("debug logger should accept debug records")
	}

	warn := newLogger("warn", "")
	if warn.Handler().Enabled(ctx, slog.LevelInfo) {
		t.Error("warn logger should drop info records")
	}
	if !warn.Handler().Enabled(ctx, slog.LevelWarn) {
		t.Error("warn logger should accept warn records")
	}

	// Unknown levels fall back to info.
	fallback := newLogger("shouty", "")
	if fallback.Handler().Enabled(ctx, slog.LevelDebug) {
		t.Error("fallback logger should drop debug records")
	}
	if !fallback.Handler().Enabled(ctx, slog.LevelInfo) {
		t.Error("fallback logger should accept info records")
	}
}
