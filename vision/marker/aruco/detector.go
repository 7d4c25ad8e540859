//go:build opencv

// Package aruco detects ArUco markers with OpenCV. Build with -tags opencv.
package aruco

import (
	"context"
	"image"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gocv.io/x/gocv"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/registry"
	"github.com/avioncargo/precisionland/utils"
	"github.com/avioncargo/precisionland/vision/marker"
)

// ModelName is the registry model of the ArUco detector.
const ModelName = "aruco"

// dictionaries maps config names to OpenCV predefined dictionaries.
var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":   gocv.ArucoDict4x4_50,
	"4x4_100":  gocv.ArucoDict4x4_100,
	"4x4_250":  gocv.ArucoDict4x4_250,
	"5x5_50":   gocv.ArucoDict5x5_50,
	"5x5_100":  gocv.ArucoDict5x5_100,
	"6x6_50":   gocv.ArucoDict6x6_50,
	"6x6_250":  gocv.ArucoDict6x6_250,
	"original": gocv.ArucoDictArucoOriginal,
}

func init() {
	registry.RegisterDetector(ModelName, registry.Registration[registry.CreateDetector]{
		Constructor: func(
			ctx context.Context,
			_ registry.Dependencies,
			conf config.Component,
			logger logging.Logger,
		) (marker.Detector, error) {
			cfg, err := config.NativeAttributes(conf, Config{Dictionary: "4x4_50"})
			if err != nil {
				return nil, err
			}
			return NewDetector(cfg, logger)
		},
	})
}

// Config are the attributes of the ArUco detector.
type Config struct {
	Dictionary string `json:"dictionary"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if _, ok := dictionaries[c.Dictionary]; !ok {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown aruco dictionary %q", c.Dictionary))
	}
	return nil
}

// Detector wraps an OpenCV ArucoDetector. OpenCV detectors are not safe for concurrent use, so
// calls are serialized.
type Detector struct {
	logger logging.Logger

	mu       sync.Mutex
	detector gocv.ArucoDetector
}

// NewDetector builds a detector for the configured dictionary.
func NewDetector(cfg Config, logger logging.Logger) (*Detector, error) {
	if err := cfg.Validate("detector.attributes"); err != nil {
		return nil, err
	}
	dict := gocv.GetPredefinedDictionary(dictionaries[cfg.Dictionary])
	params := gocv.NewArucoDetectorParameters()
	return &Detector{logger: logger, detector: gocv.NewArucoDetectorWithParams(dict, params)}, nil
}

// Detect converts the frame to grayscale and reports the markers matching target.
func (d *Detector) Detect(ctx context.Context, frame camera.Frame, target marker.Target) ([]marker.Detection, error) {
	if frame.Empty() {
		return nil, nil
	}
	gray, err := toGrayMat(frame.Image)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(gray.Close)

	d.mu.Lock()
	corners, ids, _ := d.detector.DetectMarkers(gray)
	d.mu.Unlock()

	detections := make([]marker.Detection, 0, len(ids))
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) != 4 {
			continue
		}
		var det marker.Detection
		det.ID = id
		for j, p := range corners[i] {
			det.Corners[j] = r2.Point{X: float64(p.X), Y: float64(p.Y)}
		}
		detections = append(detections, det)
	}
	return marker.Filter(detections, target), nil
}

// Close releases the OpenCV detector.
func (d *Detector) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

func toGrayMat(img image.Image) (gocv.Mat, error) {
	if g, ok := img.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(g)
	}
	rgba, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "cannot convert frame")
	}
	defer goutils.UncheckedErrorFunc(rgba.Close)
	gray := gocv.NewMat()
	gocv.CvtColor(rgba, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}
