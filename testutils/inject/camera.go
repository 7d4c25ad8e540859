// Package inject provides dependency injected structures for mocking interfaces.
package inject

import (
	"context"

	"github.com/avioncargo/precisionland/components/camera"
)

// Camera is an injected camera.
type Camera struct {
	camera.Camera
	OpenFunc     func(ctx context.Context) error
	GetFrameFunc func(ctx context.Context) (camera.Frame, error)
	CloseFunc    func(ctx context.Context) error
}

// Open calls the injected Open or the real version.
func (c *Camera) Open(ctx context.Context) error {
	if c.OpenFunc == nil {
		return c.Camera.Open(ctx)
	}
	return c.OpenFunc(ctx)
}

// GetFrame calls the injected GetFrame or the real version.
func (c *Camera) GetFrame(ctx context.Context) (camera.Frame, error) {
	if c.GetFrameFunc == nil {
		return c.Camera.GetFrame(ctx)
	}
	return c.GetFrameFunc(ctx)
}

// Close calls the injected Close or the real version. A nil embedded camera closes cleanly.
func (c *Camera) Close(ctx context.Context) error {
	if c.CloseFunc == nil {
		if c.Camera == nil {
			return nil
		}
		return c.Camera.Close(ctx)
	}
	return c.CloseFunc(ctx)
}
