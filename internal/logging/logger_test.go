package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewFlavors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantDebug bool
	}{
		{"development", Config{Development: true}, true},
		{"production", Config{}, false},
		{"production with debug", Config{Level: "debug"}, true},
		{"development with warn", Config{Development: true, Level: "warn"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New(%+v) error = %v", tt.cfg, err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tt.wantDebug {
				t.Fatalf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
