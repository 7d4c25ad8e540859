// Package guidance converts a marker pose into the landing-target triple a flight controller
// expects.
package guidance

import (
	"math"

	"github.com/golang/geo/r3"
)

// Triple is the angular offset of the target from the camera's optical axis, in radians, and its
// straight line distance in meters. AngleX grows to the right and AngleY grows downward, matching
// the camera frame.
type Triple struct {
	AngleX   float64 `json:"angle_x"`
	AngleY   float64 `json:"angle_y"`
	Distance float64 `json:"distance"`
}

// Encode derives the triple from a camera frame translation:
//
//	angle_x  = atan2(x, z)
//	angle_y  = atan2(y, z)
//	distance = sqrt(x² + y² + z²)
func Encode(translation r3.Vector) Triple {
	return Triple{
		AngleX:   math.Atan2(translation.X, translation.Z),
		AngleY:   math.Atan2(translation.Y, translation.Z),
		Distance: translation.Norm(),
	}
}

// Offset returns the lateral offset in meters that the angles correspond to at the triple's
// distance. It is used for display only.
func (t Triple) Offset() (x, y float64) {
	return t.Distance * math.Sin(t.AngleX), t.Distance * math.Sin(t.AngleY)
}
