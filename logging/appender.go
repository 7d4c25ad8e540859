package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the time format used by console and test appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender writes tab separated human readable lines to an io.Writer.
type ConsoleAppender struct {
	io.Writer
	encoder zapcore.Encoder
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewStdoutAppender creates a new appender that outputs to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender creates a new appender that outputs to the input writer.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer, zapcore.NewConsoleEncoder(consoleEncoderConfig())}
}

// FileAppenderConfig describes a rotating log file.
type FileAppenderConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// NewFileAppender returns an appender writing uncolored lines to a size rotated file.
func NewFileAppender(cfg FileAppenderConfig) ConsoleAppender {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	encoderConfig := consoleEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return ConsoleAppender{
		Writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		encoder: zapcore.NewConsoleEncoder(encoderConfig),
	}
}

// Write outputs the log entry to the underlying stream.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	_, err = appender.Writer.Write(buf.Bytes())
	return err
}

// Sync flushes file backed writers.
func (appender ConsoleAppender) Sync() error {
	if syncer, ok := appender.Writer.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// Close releases a file backed writer. It is a no-op for stdout.
func (appender ConsoleAppender) Close() error {
	if closer, ok := appender.Writer.(*lumberjack.Logger); ok {
		return closer.Close()
	}
	return nil
}

type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns a logger appender that logs to the underlying `testing.TB` object, so
// each line is associated with the test that wrote it.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write outputs the log entry to the underlying test object `Log` method.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	const maxLength = 10
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))

	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, callerToString(&entry.Caller))
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return nil
	}

	// Encode with an empty entry so only the fields are serialized, in order.
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return err
	}
	toPrint = append(toPrint, string(buf.Bytes()))
	tapp.tb.Log(strings.Join(toPrint, "\t"))
	return nil
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}

// callerToString returns "<package>/<file>:<line>", e.g. "landing/loop.go:120".
func callerToString(caller *zapcore.EntryCaller) string {
	file := caller.File
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		if pkgIdx := strings.LastIndexByte(file[:idx], '/'); pkgIdx >= 0 {
			file = file[pkgIdx+1:]
		}
	}
	return fmt.Sprintf("%s:%d", file, caller.Line)
}
