package inject

import (
	"context"

	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/guidance"
)

// Link is an injected vehicle link.
type Link struct {
	vehicle.Link
	ConnectFunc      func(ctx context.Context, address string) error
	SendGuidanceFunc func(ctx context.Context, t guidance.Triple) error
	StatusFunc       func(ctx context.Context) vehicle.Status
	DisconnectFunc   func(ctx context.Context) error
}

// Connect calls the injected Connect or the real version.
func (l *Link) Connect(ctx context.Context, address string) error {
	if l.ConnectFunc == nil {
		return l.Link.Connect(ctx, address)
	}
	return l.ConnectFunc(ctx, address)
}

// SendGuidance calls the injected SendGuidance or the real version.
func (l *Link) SendGuidance(ctx context.Context, t guidance.Triple) error {
	if l.SendGuidanceFunc == nil {
		return l.Link.SendGuidance(ctx, t)
	}
	return l.SendGuidanceFunc(ctx, t)
}

// Status calls the injected Status or the real version.
func (l *Link) Status(ctx context.Context) vehicle.Status {
	if l.StatusFunc == nil {
		return l.Link.Status(ctx)
	}
	return l.StatusFunc(ctx)
}

// Disconnect calls the injected Disconnect or the real version.
func (l *Link) Disconnect(ctx context.Context) error {
	if l.DisconnectFunc == nil {
		if l.Link == nil {
			return nil
		}
		return l.Link.Disconnect(ctx)
	}
	return l.DisconnectFunc(ctx)
}
