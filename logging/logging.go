// Package logging builds the bridge's zap logger.
//
// The host gives the bridge no console, so logs go to a file. An empty file
// setting disables logging entirely.
package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/xf-bridge/config"
	"github.com/wippyai/xf-bridge/errors"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// Logger returns the process-wide logger. It is a no-op logger until
// SetLogger is called.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// SetLogger replaces the process-wide logger. A nil logger restores the
// no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	global = l
	mu.Unlock()
}

// New builds a logger from cfg.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "log level")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create log directory")
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.DisableStacktrace = true
	zc.Encoding = "console"
	if cfg.Format == "json" {
		zc.Encoding = "json"
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{cfg.File}
	zc.ErrorOutputPaths = []string{cfg.File}

	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "open log file")
	}
	return l, nil
}

// LineWriter turns a byte stream into one log entry per line. It is used
// for guest stdout and stderr.
type LineWriter struct {
	logger *zap.Logger
	level  zapcore.Level
	mu     sync.Mutex
	buf    bytes.Buffer
}

// NewLineWriter returns a writer that logs each line at level.
func NewLineWriter(l *zap.Logger, level zapcore.Level) *LineWriter {
	return &LineWriter{logger: l, level: level}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Partial line: keep it for the next write.
			w.buf.Reset()
			w.buf.Write(line)
			break
		}
		w.emit(bytes.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
}

func (w *LineWriter) emit(line []byte) {
	if ce := w.logger.Check(w.level, string(line)); ce != nil {
		ce.Write()
	}
}
