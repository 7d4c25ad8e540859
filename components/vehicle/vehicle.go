// Package vehicle defines the telemetry and command link to a flight controller.
package vehicle

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/guidance"
)

// SubtypeName identifies vehicle links in configuration and the registry.
const SubtypeName = "vehicle"

// ErrNotConnected is returned by SendGuidance when the link has no live flight controller.
var ErrNotConnected = errors.New("vehicle is not connected")

// A Link sends landing guidance to a flight controller and reports its state. Implementations
// may talk to real hardware or simulate one.
type Link interface {
	// Connect opens the link. The address format is implementation specific.
	Connect(ctx context.Context, address string) error
	// SendGuidance forwards one landing-target triple. Failures are *SendError or ErrNotConnected.
	SendGuidance(ctx context.Context, t guidance.Triple) error
	// Status returns a fresh snapshot; it never blocks on the transport.
	Status(ctx context.Context) Status
	// Disconnect closes the link. Disconnecting a closed link is a no-op.
	Disconnect(ctx context.Context) error
}

// SendError is returned when the transport fails to deliver guidance.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("cannot send guidance: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// GPS is the receiver state.
type GPS struct {
	Satellites int `json:"satellites"`
	// FixType follows MAVLink GPS_FIX_TYPE: 0-1 no fix, 2 2D, 3 3D, higher are augmented fixes.
	FixType int `json:"fix_type"`
}

// Position is the global position in degrees and meters above mean sea level.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// Status is one snapshot of the flight controller. It is only valid for the cycle that read it.
type Status struct {
	Connected      bool          `json:"connected"`
	Mode           string        `json:"mode"`
	Armed          bool          `json:"armed"`
	BatteryVoltage float64       `json:"battery_voltage"`
	GPS            GPS           `json:"gps"`
	Position       Position      `json:"position"`
	HeartbeatAge   time.Duration `json:"heartbeat_age"`
}

// Disconnected is the status reported by a link that is not connected.
func Disconnected() Status {
	return Status{Mode: "UNKNOWN"}
}
