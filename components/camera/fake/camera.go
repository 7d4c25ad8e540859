// Package fake implements a simulated camera that renders the landing pad scene.
package fake

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/registry"
	"github.com/avioncargo/precisionland/rimage"
	"github.com/avioncargo/precisionland/sim"
	"github.com/avioncargo/precisionland/utils"
)

// ModelName is the registry model of the simulated camera.
const ModelName = "fake"

const gridSpacing = 40

var (
	background = color.NRGBA{R: 96, G: 112, B: 88, A: 255}
	gridColor  = color.NRGBA{R: 120, G: 136, B: 110, A: 255}
)

func init() {
	registry.RegisterCamera(ModelName, registry.Registration[registry.CreateCamera]{
		Constructor: func(
			ctx context.Context,
			deps registry.Dependencies,
			conf config.Component,
			logger logging.Logger,
		) (camera.Camera, error) {
			cfg, err := config.NativeAttributes(conf, Config{})
			if err != nil {
				return nil, err
			}
			return NewCamera(cfg, deps.Scene, deps.Clock, logger)
		},
		Simulated: true,
	})
}

// Config are the attributes of the fake camera config.
type Config struct {
	// OpenFailures is how many opens fail before the camera comes up.
	OpenFailures int `json:"open_failures,omitempty"`
	// FailEvery makes every nth frame a capture failure. Zero never fails.
	FailEvery int `json:"fail_every,omitempty"`
	// HideText leaves the overlay text off the frames.
	HideText bool `json:"hide_text,omitempty"`
}

// Validate checks that the config attributes are valid for a fake camera.
func (c *Config) Validate(path string) error {
	if c.OpenFailures < 0 || c.FailEvery < 0 {
		return utils.NewConfigValidationError(path, errors.New("failure counts must not be negative"))
	}
	return nil
}

// Camera renders the scene at the current clock time.
type Camera struct {
	cfg    Config
	scene  *sim.Scene
	clock  clock.Clock
	logger logging.Logger

	mu     sync.Mutex
	open   bool
	opens  int
	frames int
}

// NewCamera returns a closed simulated camera. A nil clock uses the wall clock.
func NewCamera(cfg Config, scene *sim.Scene, clk clock.Clock, logger logging.Logger) (*Camera, error) {
	if err := cfg.Validate("camera.attributes"); err != nil {
		return nil, err
	}
	if scene == nil {
		return nil, errors.New("fake camera requires a scene")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Camera{cfg: cfg, scene: scene, clock: clk, logger: logger}, nil
}

// Open succeeds once the configured number of failures has been used up.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.opens <= c.cfg.OpenFailures {
		return camera.NewConnectionError(ModelName, errors.Errorf("simulated open failure %d of %d", c.opens, c.cfg.OpenFailures))
	}
	if !c.open {
		w, h := c.scene.Size()
		c.logger.Infow("simulated camera open", "width", w, "height", h)
	}
	c.open = true
	return nil
}

// GetFrame renders one frame.
func (c *Camera) GetFrame(ctx context.Context) (camera.Frame, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return camera.Frame{}, camera.NewCaptureError(ModelName, camera.ErrNotOpen)
	}
	c.frames++
	n := c.frames
	c.mu.Unlock()

	if c.cfg.FailEvery > 0 && n%c.cfg.FailEvery == 0 {
		return camera.Frame{}, camera.NewCaptureError(ModelName, errors.Errorf("simulated read failure on frame %d", n))
	}
	now := c.clock.Now()
	return camera.Frame{Image: c.Render(now, n), CapturedAt: now}, nil
}

// Render draws the scene as seen at the given time.
func (c *Camera) Render(at time.Time, frame int) *image.RGBA {
	w, h := c.scene.Size()
	dc := gg.NewContext(w, h)
	dc.SetColor(background)
	dc.Clear()

	dc.SetColor(gridColor)
	dc.SetLineWidth(1)
	for x := gridSpacing; x < w; x += gridSpacing {
		dc.DrawLine(float64(x), 0, float64(x), float64(h))
	}
	for y := gridSpacing; y < h; y += gridSpacing {
		dc.DrawLine(0, float64(y), float64(w), float64(y))
	}
	dc.Stroke()

	if corners, ok := c.scene.Corners(at); ok {
		drawMarker(dc, corners)
	}
	if !c.cfg.HideText {
		rimage.DrawString(dc, fmt.Sprintf("SIMULATION  marker %d  frame %d", c.scene.MarkerID(), frame),
			image.Point{X: 8, Y: 8}, rimage.Yellow, 14)
	}
	//nolint:forcetypeassert
	return dc.Image().(*image.RGBA)
}

// Close releases the simulated device.
func (c *Camera) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// drawMarker paints a black square with a white quiet zone and a white orientation cell near the
// top-left corner.
func drawMarker(dc *gg.Context, corners [4]r2.Point) {
	rimage.FillQuad(dc, cell(corners, -0.25, 1.25), rimage.White)
	rimage.FillQuad(dc, corners, rimage.Black)
	rimage.FillQuad(dc, cell(corners, 0.15, 0.4), rimage.White)
}

// cell maps the square [lo, hi]² in marker coordinates onto the image quad.
func cell(corners [4]r2.Point, lo, hi float64) [4]r2.Point {
	at := func(u, v float64) r2.Point {
		top := rimage.Lerp(corners[0], corners[1], u)
		bottom := rimage.Lerp(corners[3], corners[2], u)
		return rimage.Lerp(top, bottom, v)
	}
	return [4]r2.Point{at(lo, lo), at(hi, lo), at(hi, hi), at(lo, hi)}
}
