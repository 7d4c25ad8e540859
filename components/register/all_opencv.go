//go:build opencv

package register

import (
	// register OpenCV models.
	_ "github.com/avioncargo/precisionland/components/camera/opencv"
	_ "github.com/avioncargo/precisionland/vision/marker/aruco"
)
