package control

import (
	"context"
)

// reconnectCamera releases the camera, waits the backoff, and opens it again. It makes exactly one
// attempt; the caller retries on a later iteration.
func (l *Loop) reconnectCamera(ctx context.Context, reason string) bool {
	l.stats.add(func(s *Statistics) { s.ReconnectAttempts++ })
	if err := l.cam.Close(ctx); err != nil {
		l.logger.Debugw("error closing camera before reconnect", "error", err)
	}
	if !l.sleep(ctx, l.cfg.CameraBackoff) {
		return false
	}
	if err := l.cam.Open(ctx); err != nil {
		l.captureWarn.Do(func() {
			l.logger.Warnw("camera reconnect failed", "reason", reason, "error", err)
		})
		return false
	}
	l.stats.add(func(s *Statistics) { s.Reconnects++ })
	l.logger.Infow("camera reconnected", "reason", reason)
	return true
}

// superviseVehicle retries a lost vehicle link once per retry interval. It runs beside the loop so
// that a slow connect never stalls tracking.
func (l *Loop) superviseVehicle(ctx context.Context) {
	if l.link == nil || l.cfg.VehicleRetryInterval <= 0 {
		return
	}
	ticker := l.clock.Ticker(l.cfg.VehicleRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		l.reconnectVehicle(ctx)
	}
}

// reconnectVehicle connects the link if it reports disconnected.
func (l *Loop) reconnectVehicle(ctx context.Context) bool {
	if l.link.Status(ctx).Connected {
		return true
	}
	l.stats.add(func(s *Statistics) { s.VehicleAttempts++ })
	if err := l.link.Connect(ctx, l.vehicleAddress); err != nil {
		if ctx.Err() == nil {
			l.vehicleWarn.Do(func() {
				l.logger.Warnw("vehicle not connected; guidance will not be sent", "address", l.vehicleAddress, "error", err)
			})
		}
		return false
	}
	l.stats.add(func(s *Statistics) { s.VehicleReconnects++ })
	l.logger.Infow("vehicle reconnected", "address", l.vehicleAddress)
	return true
}
