//go:build opencv

// Package opencv implements a camera backed by an OpenCV VideoCapture. Build with -tags opencv.
package opencv

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gocv.io/x/gocv"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/registry"
	"github.com/avioncargo/precisionland/utils"
)

// ModelName is the registry model of the OpenCV camera.
const ModelName = "opencv"

func init() {
	registry.RegisterCamera(ModelName, registry.Registration[registry.CreateCamera]{
		Constructor: func(
			ctx context.Context,
			_ registry.Dependencies,
			conf config.Component,
			logger logging.Logger,
		) (camera.Camera, error) {
			cfg, err := config.NativeAttributes(conf, Config{Width: 640, Height: 480})
			if err != nil {
				return nil, err
			}
			return NewCamera(cfg, logger)
		},
	})
}

// Config are the attributes of an OpenCV camera. Device is an index like "0", a device path, or a
// stream URL.
type Config struct {
	Device string `json:"device"`
	Width  int    `json:"width_px,omitempty"`
	Height int    `json:"height_px,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.Width < 0 || c.Height < 0 {
		return utils.NewConfigValidationError(path, errors.New("width_px and height_px must not be negative"))
	}
	return nil
}

// Camera reads frames from a VideoCapture.
type Camera struct {
	cfg    Config
	logger logging.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// NewCamera returns a closed OpenCV camera.
func NewCamera(cfg Config, logger logging.Logger) (*Camera, error) {
	if err := cfg.Validate("camera.attributes"); err != nil {
		return nil, err
	}
	if cfg.Device == "" {
		cfg.Device = "0"
	}
	return &Camera{cfg: cfg, logger: logger}, nil
}

// Open opens the capture device and applies the requested size.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture != nil {
		return nil
	}
	var device interface{} = c.cfg.Device
	if id, err := strconv.Atoi(c.cfg.Device); err == nil {
		device = id
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return camera.NewConnectionError(c.cfg.Device, err)
	}
	if !capture.IsOpened() {
		goutils.UncheckedError(capture.Close())
		return camera.NewConnectionError(c.cfg.Device, errors.New("device did not open"))
	}
	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}
	c.capture = capture
	c.mat = gocv.NewMat()
	c.logger.Infow("opencv camera open", "device", c.cfg.Device)
	return nil
}

// GetFrame reads one frame and converts it to an image.
func (c *Camera) GetFrame(ctx context.Context) (camera.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return camera.Frame{}, camera.NewCaptureError(c.cfg.Device, camera.ErrNotOpen)
	}
	if ok := c.capture.Read(&c.mat); !ok {
		return camera.Frame{}, camera.NewCaptureError(c.cfg.Device, errors.New("read failed"))
	}
	if c.mat.Empty() {
		return camera.Frame{}, nil
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return camera.Frame{}, camera.NewCaptureError(c.cfg.Device, err)
	}
	return camera.Frame{Image: img, CapturedAt: time.Now()}, nil
}

// Close releases the device.
func (c *Camera) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	goutils.UncheckedError(c.mat.Close())
	c.capture = nil
	return err
}
