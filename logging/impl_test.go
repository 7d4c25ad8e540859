package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.viam.com/test"
)

func newBufferLogger(name string, level Level) (*impl, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &impl{name, NewAtomicLevelAt(level), true, []Appender{NewWriterAppender(buf)}, nil}, buf
}

func TestConsoleOutputFormat(t *testing.T) {
	logger, buf := newBufferLogger("impl", DEBUG)

	logger.Info("impl Info log")
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, len(parts), test.ShouldEqual, 5)
	test.That(t, parts[1], test.ShouldContainSubstring, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "impl")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "impl Info log")

	logger.Infof("impl %s log", "infof")
	line, err = buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldContainSubstring, "impl infof log")

	logger.Infow("impl logw", "key", "value")
	line, err = buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldContainSubstring, `{"key": "value"}`)
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger("lvl", WARN)

	logger.Debug("hidden")
	logger.Info("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warn("shown")
	test.That(t, buf.String(), test.ShouldContainSubstring, "shown")

	buf.Reset()
	logger.CDebugf(EnableDebugMode(context.Background()), "ctx %s", "debug")
	test.That(t, buf.String(), test.ShouldContainSubstring, "ctx debug")

	logger.SetLevel(ERROR)
	buf.Reset()
	logger.Warn("hidden again")
	test.That(t, buf.Len(), test.ShouldEqual, 0)
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
}

func TestSubloggerAndFields(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("camera").Sublogger("webcam")
	sub.WithFields("device", "/dev/video0").Infow("opened", "width", 640)

	entries := observed.FilterMessage("opened").All()
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "camera.webcam")
	ctxMap := entries[0].ContextMap()
	test.That(t, ctxMap["device"], test.ShouldEqual, "/dev/video0")
	test.That(t, ctxMap["width"], test.ShouldEqual, int64(640))
}

func TestAsZap(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.AsZap().Infow("through zap", "k", "v")
	test.That(t, observed.FilterMessage("through zap").Len(), test.ShouldEqual, 1)

	logger.SetLevel(ERROR)
	logger.AsZap().Info("filtered")
	test.That(t, observed.FilterMessage("filtered").Len(), test.ShouldEqual, 0)
}

func TestLevelFromString(t *testing.T) {
	for in, want := range map[string]Level{"debug": DEBUG, "INFO": INFO, "": INFO, "Warn": WARN, "error": ERROR} {
		got, err := LevelFromString(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	_, err := LevelFromString("verbose")
	test.That(t, err, test.ShouldNotBeNil)
}
