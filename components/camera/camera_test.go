package camera

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestFrameClone(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	frame := Frame{Image: img, CapturedAt: time.Unix(10, 0)}

	test.That(t, frame.Width(), test.ShouldEqual, 4)
	test.That(t, frame.Height(), test.ShouldEqual, 3)
	test.That(t, frame.ChannelOrder(), test.ShouldEqual, ChannelOrderRGBA)
	test.That(t, frame.Empty(), test.ShouldBeFalse)

	clone := frame.Clone()
	// Mutating the source after cloning must not leak into the clone.
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	test.That(t, clone.Image.At(1, 1), test.ShouldResemble, color.RGBA{R: 255, A: 255})
	test.That(t, clone.CapturedAt, test.ShouldEqual, frame.CapturedAt)
}

func TestFrameCloneConverts(t *testing.T) {
	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420)
	frame := Frame{Image: ycc}
	test.That(t, frame.ChannelOrder(), test.ShouldEqual, ChannelOrderYCbCr)
	test.That(t, frame.Clone().ChannelOrder(), test.ShouldEqual, ChannelOrderRGBA)

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(0, 0, color.Gray{Y: 9})
	cloned := Frame{Image: gray}.Clone()
	test.That(t, cloned.ChannelOrder(), test.ShouldEqual, ChannelOrderGray)
	test.That(t, cloned.Image.(*image.Gray).GrayAt(0, 0).Y, test.ShouldEqual, uint8(9))
}

func TestEmptyFrame(t *testing.T) {
	var frame Frame
	test.That(t, frame.Empty(), test.ShouldBeTrue)
	test.That(t, frame.Width(), test.ShouldEqual, 0)
	test.That(t, frame.Clone().Image, test.ShouldBeNil)
	test.That(t, Frame{Image: image.NewRGBA(image.Rectangle{})}.Empty(), test.ShouldBeTrue)
}

func TestErrors(t *testing.T) {
	cause := errors.New("no such device")
	var connErr *ConnectionError
	err := error(NewConnectionError("/dev/video0", cause))
	test.That(t, errors.As(err, &connErr), test.ShouldBeTrue)
	test.That(t, connErr.Device, test.ShouldEqual, "/dev/video0")
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no such device")

	var capErr *CaptureError
	err = NewCaptureError("sim", ErrNotOpen)
	test.That(t, errors.As(err, &capErr), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrNotOpen), test.ShouldBeTrue)
}
