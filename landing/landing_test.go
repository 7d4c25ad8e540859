package landing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	_ "github.com/avioncargo/precisionland/components/register"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement/store"
)

func simulatedConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Web.Listen = "127.0.0.1:0"
	cfg.Movements.Database = filepath.Join(t.TempDir(), "movements.db")
	cfg.Loop.CameraBackoff = time.Millisecond
	return cfg
}

func TestSimulatedRun(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	cfg := simulatedConfig(t)

	sys, err := New(ctx, cfg, Options{}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sys.Vehicle, test.ShouldNotBeNil)
	test.That(t, sys.Store, test.ShouldNotBeNil)
	test.That(t, sys.WebAddress(), test.ShouldBeEmpty)

	test.That(t, sys.OpenCamera(ctx, cfg.StartupAttempts), test.ShouldBeNil)
	test.That(t, sys.ConnectVehicle(ctx), test.ShouldBeNil)
	test.That(t, sys.Start(ctx), test.ShouldBeNil)
	test.That(t, sys.WebAddress(), test.ShouldNotBeEmpty)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, sys.Loop.Movements().Count(), test.ShouldBeGreaterThanOrEqualTo, 3)
	})
	test.That(t, sys.Close(ctx), test.ShouldBeNil)

	st, err := store.Open(ctx, cfg.Movements.Database, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, st.Close(), test.ShouldBeNil)
	}()
	summary, err := st.Summary(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Total, test.ShouldBeGreaterThanOrEqualTo, 3)
	test.That(t, summary.Runs, test.ShouldEqual, 1)
}

func TestOptions(t *testing.T) {
	ctx := context.Background()
	cfg := simulatedConfig(t)
	cfg.Movements.Database = ""

	sys, err := New(ctx, cfg, Options{NoVehicle: true, NoWeb: true}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sys.Vehicle, test.ShouldBeNil)
	test.That(t, sys.Store, test.ShouldBeNil)
	test.That(t, sys.ConnectVehicle(ctx), test.ShouldBeNil)
	test.That(t, sys.Start(ctx), test.ShouldBeNil)
	test.That(t, sys.WebAddress(), test.ShouldBeEmpty)
	test.That(t, sys.Close(ctx), test.ShouldBeNil)
}

func TestCameraNeverOpens(t *testing.T) {
	ctx := context.Background()
	cfg := simulatedConfig(t)
	cfg.Camera.Attributes = map[string]interface{}{"open_failures": 5}

	sys, err := New(ctx, cfg, Options{NoWeb: true}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, sys.Close(ctx), test.ShouldBeNil)
	}()
	err = sys.OpenCamera(ctx, 3)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera did not open after 3 attempts")

	// the fifth attempt overall is the last failure
	test.That(t, sys.OpenCamera(ctx, 2), test.ShouldNotBeNil)
	test.That(t, sys.OpenCamera(ctx, 1), test.ShouldBeNil)
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	cfg := simulatedConfig(t)
	cfg.Detector.Model = "hough"
	_, err := New(ctx, cfg, Options{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown detector model "hough"`)

	cfg = simulatedConfig(t)
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = New(ctx, cfg, Options{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
