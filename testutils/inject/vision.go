package inject

import (
	"context"

	"github.com/golang/geo/r2"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/vision/marker"
	"github.com/avioncargo/precisionland/vision/pose"
)

// Detector is an injected marker detector.
type Detector struct {
	marker.Detector
	DetectFunc func(ctx context.Context, frame camera.Frame, target marker.Target) ([]marker.Detection, error)
}

// Detect calls the injected Detect or the real version.
func (d *Detector) Detect(ctx context.Context, frame camera.Frame, target marker.Target) ([]marker.Detection, error) {
	if d.DetectFunc == nil {
		return d.Detector.Detect(ctx, frame, target)
	}
	return d.DetectFunc(ctx, frame, target)
}

// Estimator is an injected pose estimator.
type Estimator struct {
	pose.Estimator
	EstimateFunc func(corners []r2.Point, markerLength float64, calib *transform.Calibration) (pose.Pose, error)
}

// Estimate calls the injected Estimate or the real version.
func (e *Estimator) Estimate(corners []r2.Point, markerLength float64, calib *transform.Calibration) (pose.Pose, error) {
	if e.EstimateFunc == nil {
		return e.Estimator.Estimate(corners, markerLength, calib)
	}
	return e.EstimateFunc(corners, markerLength, calib)
}
