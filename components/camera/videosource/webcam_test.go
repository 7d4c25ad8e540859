//go:build !no_media

package videosource

import (
	"context"
	"errors"
	"testing"

	driverutils "github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"go.viam.com/test"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/logging"
)

type fakeDriver struct {
	driverutils.Driver
	label string
}

func (d *fakeDriver) Info() driverutils.Info {
	return driverutils.Info{Label: d.label}
}

func media(w, h int, f frame.Format) prop.Media {
	return prop.Media{Video: prop.Video{Width: w, Height: h, FrameFormat: f}}
}

func TestSelectProperty(t *testing.T) {
	props := []prop.Media{
		media(1280, 720, frame.FormatYUY2),
		media(640, 480, frame.FormatYUY2),
		media(640, 480, frame.FormatMJPEG),
		media(320, 240, frame.FormatZ16),
	}

	got, err := selectProperty(props, DefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, media(640, 480, frame.FormatMJPEG))

	cfg := DefaultConfig()
	cfg.Format = string(frame.FormatYUY2)
	got, err = selectProperty(props, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, media(640, 480, frame.FormatYUY2))

	cfg = DefaultConfig()
	cfg.Width, cfg.Height = 0, 0
	got, err = selectProperty(props, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.FrameFormat, test.ShouldEqual, frame.FormatMJPEG)

	cfg = DefaultConfig()
	cfg.Width, cfg.Height = 1920, 1080
	_, err = selectProperty(props, cfg)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "closest driver found supports resolution 1280x720")

	_, err = selectProperty([]prop.Media{media(640, 480, frame.FormatZ16)}, DefaultConfig())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFindDriver(t *testing.T) {
	video0 := &fakeDriver{label: "/dev/video0;usb-046d_HD_Pro_Webcam"}
	video2 := &fakeDriver{label: "/dev/video2;platform-bcm2835-isp"}
	drivers := []driverutils.Driver{video0, video2}

	d, err := findDriver(drivers, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, video0)

	d, err = findDriver(drivers, "/dev/video2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, video2)

	d, err = findDriver(drivers, "usb-046d_HD_Pro_Webcam")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, video0)
	test.That(t, driverLabel(d), test.ShouldEqual, "/dev/video0")

	_, err = findDriver(drivers, "/dev/video9")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = findDriver(nil, "")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestClosedWebcam(t *testing.T) {
	cam, err := NewWebcam(DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = cam.GetFrame(context.Background())
	test.That(t, errors.Is(err, camera.ErrNotOpen), test.ShouldBeTrue)
	test.That(t, cam.Close(context.Background()), test.ShouldBeNil)

	cfg := DefaultConfig()
	cfg.Width = -1
	_, err = NewWebcam(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
