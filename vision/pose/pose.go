// Package pose estimates the 3D pose of a square planar marker from its image corners.
package pose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/utils"
)

// Pose is the marker's position and orientation in the camera frame: x right, y down, z forward,
// in meters.
type Pose struct {
	Translation r3.Vector `json:"translation"`
	// Rotation is an axis-angle vector whose norm is the angle in radians.
	Rotation r3.Vector `json:"rotation"`
	// ReprojectionError is the mean corner distance, in pixels, between the detected corners and
	// the corners reprojected from this pose.
	ReprojectionError float64 `json:"reprojection_error_px"`
}

// Valid reports whether every component is finite.
func (p Pose) Valid() bool {
	return utils.AllFinite(
		p.Translation.X, p.Translation.Y, p.Translation.Z,
		p.Rotation.X, p.Rotation.Y, p.Rotation.Z,
	)
}

// EstimationError is returned when the corner geometry cannot produce a pose.
type EstimationError struct {
	Reason string
}

func newEstimationError(format string, args ...interface{}) *EstimationError {
	return &EstimationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *EstimationError) Error() string {
	return "pose estimation failed: " + e.Reason
}

// An Estimator recovers a marker pose from its four image corners, ordered top-left, top-right,
// bottom-right, bottom-left.
type Estimator interface {
	Estimate(corners []r2.Point, markerLength float64, calib *transform.Calibration) (Pose, error)
}

// ObjectPoints returns the marker corners in the marker frame (x right, y up, z out of the marker)
// in detection order.
func ObjectPoints(markerLength float64) [4]r3.Vector {
	half := markerLength / 2
	return [4]r3.Vector{
		{X: -half, Y: half},
		{X: half, Y: half},
		{X: half, Y: -half},
		{X: -half, Y: -half},
	}
}

// Transform applies the pose to a point in the marker frame.
func (p Pose) Transform(pt r3.Vector) r3.Vector {
	return rotate(p.Rotation, pt).Add(p.Translation)
}

// rotate applies an axis-angle rotation with Rodrigues' formula.
func rotate(rvec, pt r3.Vector) r3.Vector {
	theta := rvec.Norm()
	if theta < 1e-15 {
		return pt
	}
	k := rvec.Mul(1 / theta)
	cos, sin := math.Cos(theta), math.Sin(theta)
	return pt.Mul(cos).Add(k.Cross(pt).Mul(sin)).Add(k.Mul(k.Dot(pt) * (1 - cos)))
}
