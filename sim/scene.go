// Package sim describes a synthetic landing pad that simulated cameras render and simulated
// detectors observe. Both sides key off the frame timestamp, so they agree without sharing state.
package sim

import (
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/utils"
	"github.com/avioncargo/precisionland/vision/pose"
)

// Config describes the simulated marker trajectory: an ellipse in a plane parallel to the image
// at a fixed depth, traversed once per period.
type Config struct {
	MarkerID     int           `json:"marker_id"`
	MarkerLength float64       `json:"marker_length_m"`
	Depth        float64       `json:"depth_m"`
	RadiusX      float64       `json:"radius_x_m"`
	RadiusY      float64       `json:"radius_y_m"`
	Period       time.Duration `json:"period"`
	Width        int           `json:"width_px"`
	Height       int           `json:"height_px"`
}

// DefaultConfig sweeps a 5cm marker 150px left and right and 100px up and down at 30 positions
// per second through the default calibration.
func DefaultConfig() Config {
	return Config{
		MarkerID:     0,
		MarkerLength: 0.05,
		Depth:        0.5,
		RadiusX:      0.125,
		RadiusY:      0.25 / 3,
		Period:       2 * time.Second,
		Width:        640,
		Height:       480,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.MarkerID < 0 {
		return errors.Errorf("%s: marker_id must not be negative", path)
	}
	if !utils.AllFinite(c.MarkerLength, c.Depth, c.RadiusX, c.RadiusY) {
		return errors.Errorf("%s: scene dimensions must be finite", path)
	}
	if c.MarkerLength <= 0 {
		return errors.Errorf("%s: marker_length_m must be positive", path)
	}
	if c.Depth <= 0 {
		return errors.Errorf("%s: depth_m must be positive", path)
	}
	if c.Period <= 0 {
		return errors.Errorf("%s: period must be positive", path)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("%s: image size must be positive, got %dx%d", path, c.Width, c.Height)
	}
	return nil
}

// Scene is an immutable marker trajectory viewed through a calibrated camera.
type Scene struct {
	cfg   Config
	calib *transform.Calibration
	epoch time.Time
}

// NewScene returns a scene whose trajectory starts at epoch.
func NewScene(cfg Config, calib *transform.Calibration, epoch time.Time) (*Scene, error) {
	if err := cfg.Validate("simulation"); err != nil {
		return nil, err
	}
	if calib == nil {
		return nil, errors.New("simulation requires a calibration")
	}
	return &Scene{cfg: cfg, calib: calib, epoch: epoch}, nil
}

// MarkerID is the id of the only marker in the scene.
func (s *Scene) MarkerID() int {
	return s.cfg.MarkerID
}

// MarkerLength is the marker side length in meters.
func (s *Scene) MarkerLength() float64 {
	return s.cfg.MarkerLength
}

// Size returns the image size in pixels.
func (s *Scene) Size() (width, height int) {
	return s.cfg.Width, s.cfg.Height
}

// Pose returns the true marker pose at the given time. The marker faces the camera, so its frame
// is the camera frame turned half a revolution about x.
func (s *Scene) Pose(at time.Time) pose.Pose {
	phase := 2 * math.Pi * float64(at.Sub(s.epoch)%s.cfg.Period) / float64(s.cfg.Period)
	return pose.Pose{
		Translation: r3.Vector{
			X: s.cfg.RadiusX * math.Cos(phase),
			Y: s.cfg.RadiusY * math.Sin(phase),
			Z: s.cfg.Depth,
		},
		Rotation: r3.Vector{X: math.Pi},
	}
}

// Corners projects the marker corners at the given time, in detection order. ok is false when any
// corner falls outside the image.
func (s *Scene) Corners(at time.Time) (corners [4]r2.Point, ok bool) {
	p := s.Pose(at)
	for i, obj := range pose.ObjectPoints(s.cfg.MarkerLength) {
		px, inFront := s.calib.Project(p.Transform(obj))
		if !inFront || px.X < 0 || px.Y < 0 || px.X >= float64(s.cfg.Width) || px.Y >= float64(s.cfg.Height) {
			return corners, false
		}
		corners[i] = px
	}
	return corners, true
}
