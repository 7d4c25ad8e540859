// Package marker defines fiducial marker detections, the target filter, and the detector
// interface that turns frames into detections.
package marker

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/components/camera"
)

// SubtypeName identifies detectors in configuration and the registry.
const SubtypeName = "detector"

// DefaultMarkerLength is the printed side length, in meters, used when none is configured.
const DefaultMarkerLength = 0.05

// ErrInvalidTarget is wrapped by every target construction failure.
var ErrInvalidTarget = errors.New("invalid target")

// Corner indexes into Detection.Corners. The order runs clockwise from the marker's top-left
// corner, which is the order ArUco detectors report.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Detection is one marker found in a frame.
type Detection struct {
	ID      int         `json:"id"`
	Corners [4]r2.Point `json:"corners"`
	// Confidence is in [0, 1]. Zero means the detector does not report one.
	Confidence float64 `json:"confidence,omitempty"`
}

// Center is the mean of the four corners.
func (d Detection) Center() r2.Point {
	var sum r2.Point
	for _, c := range d.Corners {
		sum = sum.Add(c)
	}
	return sum.Mul(0.25)
}

// Target selects which marker to track and gives its physical size. The zero value is not valid;
// build one with NewTarget.
type Target struct {
	id     int
	anyID  bool
	length float64
}

// NewTarget validates a target. A nil id matches any marker. The length is the printed side
// length in meters and must be finite and positive.
func NewTarget(id *int, lengthM float64) (Target, error) {
	if math.IsNaN(lengthM) || math.IsInf(lengthM, 0) || lengthM <= 0 {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "marker length must be finite and positive, got %v", lengthM)
	}
	if id == nil {
		return Target{anyID: true, length: lengthM}, nil
	}
	if *id < 0 {
		return Target{}, errors.Wrapf(ErrInvalidTarget, "marker id must not be negative, got %d", *id)
	}
	return Target{id: *id, length: lengthM}, nil
}

// MustTarget is NewTarget that panics on error. Use it for constants and tests.
func MustTarget(id *int, lengthM float64) Target {
	target, err := NewTarget(id, lengthM)
	if err != nil {
		panic(err)
	}
	return target
}

// ID returns the targeted marker id. ok is false when any marker matches.
func (t Target) ID() (id int, ok bool) {
	return t.id, !t.anyID
}

// Length returns the marker side length in meters.
func (t Target) Length() float64 {
	return t.length
}

// Matches reports whether a detection with the given id satisfies the target.
func (t Target) Matches(id int) bool {
	return t.anyID || t.id == id
}

func (t Target) String() string {
	if t.anyID {
		return fmt.Sprintf("any marker (%.3fm)", t.length)
	}
	return fmt.Sprintf("marker %d (%.3fm)", t.id, t.length)
}

// Filter returns the detections that match the target, preserving detector order.
func Filter(detections []Detection, target Target) []Detection {
	matched := make([]Detection, 0, len(detections))
	for _, det := range detections {
		if target.Matches(det.ID) {
			matched = append(matched, det)
		}
	}
	return matched
}

// Select returns the first detection that matches the target. Only one marker is tracked per
// frame. When several match an any-marker target the winner depends on detector order, which no
// detector guarantees to be stable.
func Select(detections []Detection, target Target) (Detection, bool) {
	for _, det := range detections {
		if target.Matches(det.ID) {
			return det, true
		}
	}
	return Detection{}, false
}

// A Detector finds markers in a frame. An empty result is the normal "not found" outcome and is
// never an error; errors are reserved for detector faults.
type Detector interface {
	Detect(ctx context.Context, frame camera.Frame, target Target) ([]Detection, error)
}
