package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skypro1111/utterance-capture/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.name); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.log")

	logger, closer := New(config.LoggingConfig{
		Level:     "info",
		Format:    "json",
		Output:    path,
		MaxSizeMB: 1,
	})

	logger.Debug("hidden")
	logger.Info("WAV saved", slog.String("path", "audio_1.wav"))

	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, `"msg":"WAV saved"`) || !strings.Contains(content, `"path":"audio_1.wav"`) {
		t.Errorf("Expected JSON record in log file, got %q", content)
	}
	if strings.Contains(content, "hidden") {
		t.Error("Debug record written at info level")
	}
}

func TestNewStdoutCloserIsNoop(t *testing.T) {
	logger, closer := New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
	if logger == nil {
		t.Fatal("Expected logger")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Expected no-op close, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard logger should not be enabled at error level")
	}
}
