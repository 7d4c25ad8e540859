// Package register registers all camera, detector, and vehicle models.
package register

import (
	// register models.
	_ "github.com/avioncargo/precisionland/components/camera/fake"
	_ "github.com/avioncargo/precisionland/components/vehicle/fake"
	_ "github.com/avioncargo/precisionland/components/vehicle/mavlink"
	_ "github.com/avioncargo/precisionland/vision/marker/fake"
)
