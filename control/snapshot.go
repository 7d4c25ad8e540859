package control

import (
	"time"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/guidance"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/vision/marker"
	"github.com/avioncargo/precisionland/vision/pose"
)

// TrackingState is the outcome of one cycle.
type TrackingState string

// Tracking states.
const (
	Detected TrackingState = "DETECTED"
	NotFound TrackingState = "NOT_FOUND"
)

// Tracking is the per-cycle result. Pose, Guidance, and Movement are set only when State is
// Detected.
type Tracking struct {
	State      TrackingState    `json:"state"`
	MarkerID   int              `json:"marker_id,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Pose       *pose.Pose       `json:"pose,omitempty"`
	Guidance   *guidance.Triple `json:"guidance,omitempty"`
	// Movement is the event appended to the movement log this cycle.
	Movement *movement.Event `json:"movement,omitempty"`
}

// Found reports whether a pose was estimated this cycle.
func (t Tracking) Found() bool {
	return t.State == Detected
}

// Snapshot is everything one cycle produced. Subscribers must treat it as read-only: the frame and
// detections are copies owned by the snapshot.
type Snapshot struct {
	RunID      string             `json:"run_id"`
	Sequence   uint64             `json:"sequence"`
	Timestamp  time.Time          `json:"timestamp"`
	Frame      camera.Frame       `json:"-"`
	Detections []marker.Detection `json:"detections"`
	Tracking   Tracking           `json:"tracking"`
	Vehicle    vehicle.Status     `json:"vehicle"`
	Statistics Statistics         `json:"statistics"`
}
