package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/movement/store"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"precisionland"}, args...))
	return out.String(), errOut.String(), err
}

func TestCalibrationCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calib", "camera.json")

	out, _, err := run(t, "calibration", "default", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote default calibration")

	out, _, err = run(t, "calibration", "check", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "is valid")
	test.That(t, out, test.ShouldContainSubstring, "600")
	test.That(t, out, test.ShouldContainSubstring, "k3")

	bad := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"camera_matrix": [[1, 0], [0, 1]]}`), 0o600), test.ShouldBeNil)
	_, _, err = run(t, "calibration", "check", bad)
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = run(t, "calibration", "check")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exactly one FILE")
}

func TestModels(t *testing.T) {
	out, _, err := run(t, "models")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "fake")
	test.That(t, out, test.ShouldContainSubstring, "mavlink")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "movements.db")
	st, err := store.Open(ctx, db, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		test.That(t, st.Insert(ctx, "run-a", movement.Event{
			Type:      movement.TypeLandingTarget,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Distance:  3 - float64(i),
		}), test.ShouldBeNil)
	}
	test.That(t, st.Close(), test.ShouldBeNil)

	png := filepath.Join(t.TempDir(), "distance.png")
	out, _, err := run(t, "stats", "--db", db, "--plot", png)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, movement.TypeLandingTarget)
	test.That(t, out, test.ShouldContainSubstring, "TOTAL")
	info, err := os.Stat(png)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	empty := filepath.Join(t.TempDir(), "empty.db")
	_, _, err = run(t, "stats", "--db", empty, "--plot", png)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no movements to plot")
}

func TestStatisticsTable(t *testing.T) {
	rendered := statisticsTable(control.Statistics{Frames: 90, Sends: 12, FPS: 29.97, DetectionRate: 0.5})
	test.That(t, rendered, test.ShouldContainSubstring, "Run statistics")
	test.That(t, rendered, test.ShouldContainSubstring, "30.0")
	test.That(t, rendered, test.ShouldContainSubstring, "50.0%")
}

func TestConfigureLogger(t *testing.T) {
	logger := logging.NewBlankLogger("test")
	closeLog, err := configureLogger(logger, config.Log{Level: "warn"}, false)
	test.That(t, err, test.ShouldBeNil)
	closeLog()
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.WARN)

	path := filepath.Join(t.TempDir(), "landing.log")
	closeLog, err = configureLogger(logger, config.Log{Level: "info", File: path}, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)
	logger.Infow("written to file", "k", "v")
	closeLog()
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "written to file")

	_, err = configureLogger(logger, config.Log{Level: "loud"}, false)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	cfg, err := loadConfig(ctx, "", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Model, test.ShouldEqual, "fake")

	path := filepath.Join(t.TempDir(), "landing.json")
	test.That(t, os.WriteFile(path, []byte(`{"camera": {"model": "webcam"}, "loop": {"frequency_hz": 15}}`), 0o600),
		test.ShouldBeNil)
	cfg, err = loadConfig(ctx, path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Model, test.ShouldEqual, "webcam")
	test.That(t, cfg.Loop.Frequency, test.ShouldEqual, 15.0)
	test.That(t, cfg.Loop.StopTimeout, test.ShouldEqual, 2*time.Second)
}
