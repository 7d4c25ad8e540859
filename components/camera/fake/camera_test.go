package fake

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/registry"
	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/sim"
)

func newScene(t *testing.T, epoch time.Time) *sim.Scene {
	t.Helper()
	scene, err := sim.NewScene(sim.DefaultConfig(), transform.DefaultCalibration(), epoch)
	test.That(t, err, test.ShouldBeNil)
	return scene
}

func TestRendersMarker(t *testing.T) {
	ctx := context.Background()
	mockClock := clock.NewMock()
	cam, err := NewCamera(Config{HideText: true}, newScene(t, mockClock.Now()), mockClock, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = cam.GetFrame(ctx)
	var captureErr *camera.CaptureError
	test.That(t, errors.As(err, &captureErr), test.ShouldBeTrue)
	test.That(t, errors.Is(err, camera.ErrNotOpen), test.ShouldBeTrue)

	test.That(t, cam.Open(ctx), test.ShouldBeNil)
	frame, err := cam.GetFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.CapturedAt, test.ShouldEqual, mockClock.Now())
	test.That(t, frame.Width(), test.ShouldEqual, 640)
	test.That(t, frame.Height(), test.ShouldEqual, 480)
	test.That(t, frame.ChannelOrder(), test.ShouldEqual, camera.ChannelOrderRGBA)

	// the marker spans (440,210) to (500,270) at the start of the trajectory
	black := color.RGBA{A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	test.That(t, frame.Image.At(470, 240), test.ShouldResemble, black)
	test.That(t, frame.Image.At(455, 225), test.ShouldResemble, white)
	test.That(t, frame.Image.At(434, 240), test.ShouldResemble, white)
	test.That(t, frame.Image.At(100, 100), test.ShouldResemble, color.RGBA{R: 96, G: 112, B: 88, A: 255})

	// a quarter period later the marker is straight below the principal point
	mockClock.Add(500 * time.Millisecond)
	frame, err = cam.GetFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Image.At(320, 340), test.ShouldResemble, black)
	test.That(t, frame.Image.At(470, 240), test.ShouldNotResemble, black)

	test.That(t, cam.Close(ctx), test.ShouldBeNil)
	test.That(t, cam.Close(ctx), test.ShouldBeNil)
	_, err = cam.GetFrame(ctx)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSimulatedFailures(t *testing.T) {
	ctx := context.Background()
	mockClock := clock.NewMock()
	cam, err := NewCamera(Config{OpenFailures: 2, FailEvery: 3}, newScene(t, mockClock.Now()), mockClock, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < 2; i++ {
		err := cam.Open(ctx)
		var connErr *camera.ConnectionError
		test.That(t, errors.As(err, &connErr), test.ShouldBeTrue)
	}
	test.That(t, cam.Open(ctx), test.ShouldBeNil)

	var failures int
	for i := 0; i < 9; i++ {
		frame, err := cam.GetFrame(ctx)
		if err != nil {
			failures++
			test.That(t, frame.Empty(), test.ShouldBeTrue)
			continue
		}
		test.That(t, frame.Empty(), test.ShouldBeFalse)
	}
	test.That(t, failures, test.ShouldEqual, 3)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{FailEvery: -1}
	test.That(t, cfg.Validate("camera"), test.ShouldNotBeNil)
	_, err := NewCamera(Config{}, nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRegistered(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	deps := registry.Dependencies{Scene: newScene(t, time.Now()), Clock: clock.NewMock()}

	cam, err := registry.NewCamera(ctx, deps, config.Component{
		Model:      ModelName,
		Attributes: map[string]interface{}{"open_failures": 1.0},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Open(ctx), test.ShouldNotBeNil)
	test.That(t, cam.Open(ctx), test.ShouldBeNil)

	_, err = registry.NewCamera(ctx, deps, config.Component{
		Model:      ModelName,
		Attributes: map[string]interface{}{"open_failure": 1.0},
	}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
