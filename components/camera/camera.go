// Package camera defines an image capturing device that the landing loop pulls frames from.
package camera

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/pkg/errors"
)

// SubtypeName identifies cameras in configuration and the registry.
const SubtypeName = "camera"

// ErrNotOpen is returned by GetFrame before Open succeeds or after Close.
var ErrNotOpen = errors.New("camera is not open")

// A Camera produces timestamped frames. Implementations may be physical devices or simulated
// sources; callers do not distinguish them. GetFrame must return within bounded time.
type Camera interface {
	// Open acquires the device. Failures are *ConnectionError.
	Open(ctx context.Context) error
	// GetFrame captures one frame. Failures are *CaptureError. The returned image may share
	// storage with the device; call Frame.Clone to retain it.
	GetFrame(ctx context.Context) (Frame, error)
	// Close releases the device. Closing a closed camera is a no-op.
	Close(ctx context.Context) error
}

// ConnectionError is returned when a camera cannot be opened.
type ConnectionError struct {
	Device string
	Err    error
}

// NewConnectionError wraps err as a connection failure for device.
func NewConnectionError(device string, err error) *ConnectionError {
	return &ConnectionError{Device: device, Err: err}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot open camera %q: %v", e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CaptureError is returned when an open camera fails to produce a frame.
type CaptureError struct {
	Device string
	Err    error
}

// NewCaptureError wraps err as a capture failure for device.
func NewCaptureError(device string, err error) *CaptureError {
	return &CaptureError{Device: device, Err: err}
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("cannot capture from camera %q: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// ChannelOrder names the pixel layout of a frame.
type ChannelOrder string

// Channel orders reported by Frame.ChannelOrder.
const (
	ChannelOrderRGBA  ChannelOrder = "rgba"
	ChannelOrderGray  ChannelOrder = "gray"
	ChannelOrderYCbCr ChannelOrder = "ycbcr"
	ChannelOrderOther ChannelOrder = "other"
)

// Frame is one captured image. Treat it as immutable.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Image == nil || f.Image.Bounds().Empty()
}

// Width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// ChannelOrder reports the pixel layout of the underlying image.
func (f Frame) ChannelOrder() ChannelOrder {
	switch f.Image.(type) {
	case *image.RGBA, *image.NRGBA:
		return ChannelOrderRGBA
	case *image.Gray:
		return ChannelOrderGray
	case *image.YCbCr:
		return ChannelOrderYCbCr
	default:
		return ChannelOrderOther
	}
}

// Clone returns a frame backed by its own pixel storage.
func (f Frame) Clone() Frame {
	if f.Image == nil {
		return f
	}
	return Frame{Image: CloneImage(f.Image), CapturedAt: f.CapturedAt}
}

// CloneImage copies img into a new image. Gray and RGBA images keep their layout; everything else
// is converted to RGBA.
func CloneImage(img image.Image) image.Image {
	bounds := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		dst := image.NewGray(bounds)
		copy(dst.Pix, src.Pix)
		if src.Stride != dst.Stride {
			draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
		}
		return dst
	case *image.RGBA:
		dst := image.NewRGBA(bounds)
		if src.Stride == dst.Stride {
			copy(dst.Pix, src.Pix)
		} else {
			draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
		}
		return dst
	default:
		dst := image.NewRGBA(bounds)
		draw.Draw(dst, bounds, img, bounds.Min, draw.Src)
		return dst
	}
}
