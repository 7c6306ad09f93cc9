package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerBasic(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "test message", String("k", "v"), Int("n", 1))
	Get().Debug(ctx, "debug message", Int64("seq", 7))
	Get().Warn(ctx, "warn message", Any("v", []int{1, 2}))
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	named := Named("test")
	if named == nil {
		t.Fatal("named logger is nil")
	}
	named.Info(context.Background(), "test message")
}

func TestSetLevelString(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		if err := SetLevelString(in); err != nil {
			t.Fatalf("SetLevelString(%q): %v", in, err)
		}
		if got := levelVar.Level(); got != want {
			t.Errorf("SetLevelString(%q) set %v, want %v", in, got, want)
		}
	}

	if err := SetLevelString("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
