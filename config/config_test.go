package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/rimage/transform"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Ensure(), test.ShouldBeNil)
	test.That(t, cfg.Loop.Frequency, test.ShouldEqual, 30.0)
	test.That(t, cfg.Movements.Capacity, test.ShouldEqual, 1000)
	test.That(t, cfg.Web.Listen, test.ShouldEqual, ":8200")
	test.That(t, cfg.Influx.Enabled(), test.ShouldBeFalse)

	target, err := cfg.Target.Build()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, target.Length(), test.ShouldEqual, 0.05)

	calib, err := cfg.Calibration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calib.Intrinsics().Fx, test.ShouldEqual, 600.0)
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	t.Setenv("INFLUX_TOKEN", "s3cret")

	dir := t.TempDir()
	calibPath := filepath.Join(dir, "camera.json")
	test.That(t, transform.SaveCalibration(calibPath, transform.DefaultCalibration()), test.ShouldBeNil)

	path := filepath.Join(dir, "landing.json")
	test.That(t, os.WriteFile(path, []byte(`{
		"camera": {"model": "webcam", "attributes": {"video_path": "/dev/video0"}},
		"vehicle": {"model": "mavlink", "address": "serial:/dev/ttyACM0:115200"},
		"target": {"marker_id": 4, "marker_length_m": 0.12},
		"calibration_file": "`+calibPath+`",
		"loop": {"frequency_hz": 20, "camera_backoff": "250ms"},
		"influx": {"url": "http://localhost:8086", "token": "${INFLUX_TOKEN}", "org": "avion", "bucket": "landing"}
	}`), 0o600), test.ShouldBeNil)

	cfg, err := Read(ctx, path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Camera.Attributes["video_path"], test.ShouldEqual, "/dev/video0")
	test.That(t, cfg.Vehicle.Model, test.ShouldEqual, "mavlink")
	test.That(t, cfg.Vehicle.Address, test.ShouldEqual, "serial:/dev/ttyACM0:115200")
	test.That(t, *cfg.Target.MarkerID, test.ShouldEqual, 4)
	test.That(t, cfg.Loop.Frequency, test.ShouldEqual, 20.0)
	test.That(t, cfg.Loop.CameraBackoff, test.ShouldEqual, 250*time.Millisecond)
	test.That(t, cfg.Loop.ErrorPause, test.ShouldEqual, 100*time.Millisecond)
	test.That(t, cfg.Influx.Token, test.ShouldEqual, "s3cret")
	test.That(t, cfg.Influx.Measurement, test.ShouldEqual, "precision_landing")

	_, err = cfg.Calibration()
	test.That(t, err, test.ShouldBeNil)
}

func TestFromReaderErrors(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	read := func(doc string) error {
		_, err := FromReader(ctx, "test.json", bytes.NewBufferString(doc), logger)
		return err
	}

	test.That(t, read(`{`), test.ShouldNotBeNil)

	err := read(`{"loop": {"frequency": 30}}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "frequency")

	err = read(`{"loop": {"frequency_hz": 500}}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"loop"`)

	err = read(`{"target": {"marker_length_m": -1}}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"target"`)

	err = read(`{"camera": {"model": ""}}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"model" is required`)

	test.That(t, read(`{"vehicle": {"model": "", "disabled": true}}`), test.ShouldBeNil)
	test.That(t, read(`{"log": {"level": "loud"}}`), test.ShouldNotBeNil)
	test.That(t, read(`{"startup_attempts": 0}`), test.ShouldNotBeNil)
	test.That(t, read(`{"influx": {"url": "http://localhost:8086"}}`), test.ShouldNotBeNil)
}

func TestNativeAttributes(t *testing.T) {
	type attrs struct {
		Width   int           `json:"width_px"`
		Timeout time.Duration `json:"read_timeout"`
	}
	defaults := attrs{Width: 640, Timeout: time.Second}

	got, err := NativeAttributes(Component{Model: "webcam"}, defaults)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, defaults)

	got, err = NativeAttributes(Component{Model: "webcam", Attributes: map[string]interface{}{
		"read_timeout": "2s",
	}}, defaults)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, attrs{Width: 640, Timeout: 2 * time.Second})

	_, err = NativeAttributes(Component{Model: "webcam", Attributes: map[string]interface{}{
		"height_px": 480,
	}}, defaults)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"webcam"`)
}
