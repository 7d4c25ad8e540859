//go:build !no_media

package register

import (
	// register the webcam.
	_ "github.com/avioncargo/precisionland/components/camera/videosource"
)
