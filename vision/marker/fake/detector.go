// Package fake implements a detector that reads marker corners straight from the simulated scene.
package fake

import (
	"context"

	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/registry"
	"github.com/avioncargo/precisionland/sim"
	"github.com/avioncargo/precisionland/utils"
	"github.com/avioncargo/precisionland/vision/marker"
)

// ModelName is the registry model of the simulated detector.
const ModelName = "fake"

func init() {
	registry.RegisterDetector(ModelName, registry.Registration[registry.CreateDetector]{
		Constructor: func(
			ctx context.Context,
			deps registry.Dependencies,
			conf config.Component,
			logger logging.Logger,
		) (marker.Detector, error) {
			cfg, err := config.NativeAttributes(conf, Config{})
			if err != nil {
				return nil, err
			}
			return NewDetector(cfg, deps.Scene)
		},
		Simulated: true,
	})
}

// Config are the attributes of the fake detector.
type Config struct {
	// Decoys are extra marker ids reported at the same corners after the real one, to exercise
	// target filtering.
	Decoys []int `json:"decoys,omitempty"`
	// Confidence is reported with every detection.
	Confidence float64 `json:"confidence,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	for _, id := range c.Decoys {
		if id < 0 {
			return utils.NewConfigValidationError(path, errors.Errorf("decoy id must not be negative, got %d", id))
		}
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return utils.NewConfigValidationError(path, errors.New("confidence must be in [0, 1]"))
	}
	return nil
}

// Detector reports the scene marker whenever it is fully inside the frame.
type Detector struct {
	cfg   Config
	scene *sim.Scene
}

// NewDetector returns a detector over scene.
func NewDetector(cfg Config, scene *sim.Scene) (*Detector, error) {
	if err := cfg.Validate("detector.attributes"); err != nil {
		return nil, err
	}
	if scene == nil {
		return nil, errors.New("fake detector requires a scene")
	}
	return &Detector{cfg: cfg, scene: scene}, nil
}

// Detect looks the marker up at the frame's capture time.
func (d *Detector) Detect(ctx context.Context, frame camera.Frame, target marker.Target) ([]marker.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Empty() {
		return nil, nil
	}
	corners, ok := d.scene.Corners(frame.CapturedAt)
	if !ok {
		return nil, nil
	}
	ids := append([]int{d.scene.MarkerID()}, d.cfg.Decoys...)
	detections := make([]marker.Detection, 0, len(ids))
	for _, id := range ids {
		detections = append(detections, marker.Detection{ID: id, Corners: corners, Confidence: d.cfg.Confidence})
	}
	return marker.Filter(detections, target), nil
}
