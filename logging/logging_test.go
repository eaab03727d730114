package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/xf-bridge/config"
)

func TestNew_EmptyFileIsNop(t *testing.T) {
	l, err := New(config.LogConfig{Level: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger without a file should be disabled")
	}
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bridge.log")
	l, err := New(config.LogConfig{File: path, Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Debug("hidden")
	l.Info("engine started", zap.Int("start", 1))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, `"msg":"engine started"`) || !strings.Contains(text, `"start":1`) {
		t.Errorf("log file missing entry:\n%s", text)
	}
	if strings.Contains(text, "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{File: filepath.Join(t.TempDir(), "x.log"), Level: "loud"}); err == nil {
		t.Error("expected error")
	}
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Logger().Info("hello")
	if logs.Len() != 1 {
		t.Errorf("observed %d entries, want 1", logs.Len())
	}

	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("SetLogger(nil) must restore a usable logger")
	}
}

func TestLineWriter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w := NewLineWriter(zap.New(core), zapcore.WarnLevel)

	if _, err := w.Write([]byte("first line\nsecond ")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("half\r\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("tail")); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	entries := logs.All()
	want := []string{"first line", "second half", "tail"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Message != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Message, want[i])
		}
		if e.Level != zapcore.WarnLevel {
			t.Errorf("entry %d level = %v", i, e.Level)
		}
	}
}
