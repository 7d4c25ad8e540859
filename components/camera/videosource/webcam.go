//go:build !no_media

// Package videosource implements the webcam camera on top of the mediadevices drivers.
package videosource

import (
	"context"
	"image"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	driverutils "github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/registry"
	"github.com/avioncargo/precisionland/utils"
)

// ModelWebcam is the name of the webcam component.
const ModelWebcam = "webcam"

// preferredFormats are tried in order when the config does not name one.
var preferredFormats = []frame.Format{
	frame.FormatMJPEG,
	frame.FormatYUY2,
	frame.FormatI420,
	frame.FormatNV12,
	frame.FormatUYVY,
	frame.FormatRGBA,
}

func init() {
	registry.RegisterCamera(ModelWebcam, registry.Registration[registry.CreateCamera]{
		Constructor: func(
			ctx context.Context,
			_ registry.Dependencies,
			conf config.Component,
			logger logging.Logger,
		) (camera.Camera, error) {
			cfg, err := config.NativeAttributes(conf, DefaultConfig())
			if err != nil {
				return nil, err
			}
			return NewWebcam(cfg, logger)
		},
	})
}

// WebcamConfig is the native config attribute struct for webcams.
type WebcamConfig struct {
	// Path is a device path like /dev/video0 or a driver label. Empty picks the first webcam.
	Path        string        `json:"video_path,omitempty"`
	Format      string        `json:"format,omitempty"`
	Width       int           `json:"width_px,omitempty"`
	Height      int           `json:"height_px,omitempty"`
	ReadTimeout time.Duration `json:"read_timeout,omitempty"`
}

// DefaultConfig asks for 640x480 and gives up on a read after a second.
func DefaultConfig() WebcamConfig {
	return WebcamConfig{Width: 640, Height: 480, ReadTimeout: time.Second}
}

// Validate ensures all parts of the config are valid.
func (c WebcamConfig) Validate(path string) error {
	if c.Width < 0 || c.Height < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf(
			"got illegal negative dimensions for width_px and height_px (%d, %d) fields set for webcam camera",
			c.Width, c.Height))
	}
	if c.ReadTimeout <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "read_timeout")
	}
	return nil
}

type readResult struct {
	img image.Image
	err error
}

// webcam is a video driver wrapper camera.
type webcam struct {
	conf   WebcamConfig
	logger logging.Logger

	mu     sync.Mutex
	driver driverutils.Driver
	reader video.Reader
	label  string
}

// NewWebcam returns a closed webcam.
func NewWebcam(conf WebcamConfig, logger logging.Logger) (camera.Camera, error) {
	if err := conf.Validate("camera.attributes"); err != nil {
		return nil, err
	}
	return &webcam{conf: conf, logger: logger}, nil
}

func (c *webcam) device() string {
	if c.conf.Path == "" {
		return "webcam"
	}
	return c.conf.Path
}

// Open finds the driver matching the config and starts recording.
func (c *webcam) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return nil
	}

	mediadevicescamera.Initialize()
	d, err := findDriver(driverutils.GetManager().Query(driverutils.FilterVideoRecorder()), c.conf.Path)
	if err != nil {
		return camera.NewConnectionError(c.device(), err)
	}
	if d.Status() == driverutils.StateClosed {
		if err := d.Open(); err != nil {
			return camera.NewConnectionError(c.device(), errors.Wrap(err, "failed to open driver"))
		}
	}
	media, err := selectProperty(d.Properties(), c.conf)
	if err != nil {
		goutils.UncheckedError(d.Close())
		return camera.NewConnectionError(c.device(), err)
	}
	recorder, ok := d.(driverutils.VideoRecorder)
	if !ok {
		goutils.UncheckedError(d.Close())
		return camera.NewConnectionError(c.device(), errors.Errorf("driver %q cannot record video", driverLabel(d)))
	}
	reader, err := recorder.VideoRecord(media)
	if err != nil {
		goutils.UncheckedError(d.Close())
		return camera.NewConnectionError(c.device(), errors.Wrap(err, "failed to start recording"))
	}

	c.driver = d
	c.reader = reader
	c.label = driverLabel(d)
	c.logger.Infow("webcam open", "label", c.label,
		"width", media.Width, "height", media.Height, "format", media.FrameFormat)
	return nil
}

// GetFrame reads the next frame, giving up after the read timeout. The frame is copied out of the
// driver buffer.
func (c *webcam) GetFrame(ctx context.Context) (camera.Frame, error) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil {
		return camera.Frame{}, camera.NewCaptureError(c.device(), camera.ErrNotOpen)
	}

	done := make(chan readResult, 1)
	go func() {
		img, release, err := reader.Read()
		if err != nil {
			done <- readResult{err: err}
			return
		}
		owned := camera.CloneImage(img)
		if release != nil {
			release()
		}
		done <- readResult{img: owned}
	}()

	timer := time.NewTimer(c.conf.ReadTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			return camera.Frame{}, camera.NewCaptureError(c.device(), res.err)
		}
		return camera.Frame{Image: res.img, CapturedAt: time.Now()}, nil
	case <-timer.C:
		return camera.Frame{}, camera.NewCaptureError(c.device(), errors.Errorf("no frame within %v", c.conf.ReadTimeout))
	case <-ctx.Done():
		return camera.Frame{}, camera.NewCaptureError(c.device(), ctx.Err())
	}
}

// Close stops the driver. Closing a closed webcam is a no-op.
func (c *webcam) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return nil
	}
	c.logger.Debugw("closing current camera", "label", c.label)
	err := c.driver.Close()
	c.driver = nil
	c.reader = nil
	return err
}

func driverLabel(d driverutils.Driver) string {
	return strings.Split(d.Info().Label, mediadevicescamera.LabelSeparator)[0]
}

// findDriver picks the driver whose label matches path, or the first one when path is empty.
func findDriver(drivers []driverutils.Driver, path string) (driverutils.Driver, error) {
	if len(drivers) == 0 {
		return nil, errors.New("found no webcams")
	}
	if path == "" {
		return drivers[0], nil
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	for _, d := range drivers {
		for _, label := range strings.Split(d.Info().Label, mediadevicescamera.LabelSeparator) {
			if label == path || filepath.Base(label) == filepath.Base(path) {
				return d, nil
			}
		}
	}
	return nil, errors.Errorf("found no webcam at %q", path)
}

// selectProperty picks the driver mode closest to the requested size, preferring the configured
// or earliest preferred frame format on ties.
func selectProperty(props []prop.Media, conf WebcamConfig) (prop.Media, error) {
	formats := preferredFormats
	if conf.Format != "" {
		formats = []frame.Format{frame.Format(conf.Format)}
	}
	rank := func(f frame.Format) int {
		for i, want := range formats {
			if f == want {
				return i
			}
		}
		return -1
	}

	var (
		best      prop.Media
		bestDist  = math.Inf(1)
		bestRank  = math.MaxInt
		haveMatch bool
	)
	for _, p := range props {
		r := rank(p.FrameFormat)
		if r < 0 {
			continue
		}
		dist := math.Abs(float64(p.Width-conf.Width)) + math.Abs(float64(p.Height-conf.Height))
		if conf.Width == 0 && conf.Height == 0 {
			dist = 0
		}
		if dist < bestDist || (dist == bestDist && r < bestRank) {
			best, bestDist, bestRank, haveMatch = p, dist, r, true
		}
	}
	if !haveMatch {
		return prop.Media{}, errors.Errorf("webcam offers no supported frame format (want one of %v)", formats)
	}
	if conf.Width > 0 && conf.Height > 0 && (best.Width != conf.Width || best.Height != conf.Height) {
		return prop.Media{}, errors.Errorf("requested width and height (%dx%d) are not available for this webcam"+
			" (closest driver found supports resolution %dx%d)", conf.Width, conf.Height, best.Width, best.Height)
	}
	return best, nil
}
