package control

import (
	"context"
	"runtime/debug"

	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/guidance"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/vision/marker"
	"github.com/avioncargo/precisionland/vision/pose"
)

var errEmptyFrame = errors.New("camera returned an empty frame")

// runOnce is the iteration boundary: nothing that goes wrong inside one iteration stops the loop.
func (l *Loop) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.stats.add(func(s *Statistics) { s.UnexpectedErrors++ })
			l.logger.Errorw("landing loop iteration panicked", "panic", r, "stack", string(debug.Stack()))
			l.sleep(ctx, l.cfg.ErrorPause)
		}
	}()
	if err := l.iterate(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		l.stats.add(func(s *Statistics) { s.UnexpectedErrors++ })
		l.logger.Errorw("landing loop iteration failed", "error", err)
		l.sleep(ctx, l.cfg.ErrorPause)
	}
}

// iterate runs one capture, detect, estimate, guide, publish cycle. Recoverable faults are handled
// here; only unexpected ones are returned.
func (l *Loop) iterate(ctx context.Context) error {
	start := l.clock.Now()

	frame, err := l.cam.GetFrame(ctx)
	if err == nil && frame.Empty() {
		err = camera.NewCaptureError("", errEmptyFrame)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.stats.add(func(s *Statistics) { s.CaptureFailures++ })
		l.captureWarn.Do(func() {
			l.logger.Warnw("camera no longer connected; reconnecting", "error", err)
		})
		l.reconnectCamera(ctx, "capture failed")
		return nil
	}
	l.stats.add(func(s *Statistics) { s.Frames++ })

	detections, err := l.detector.Detect(ctx, frame, l.target)
	if err != nil {
		return errors.Wrap(err, "marker detection failed")
	}

	status := vehicle.Disconnected()
	if l.link != nil {
		status = l.link.Status(ctx)
	}

	tracking := Tracking{State: NotFound}
	if det, ok := marker.Select(detections, l.target); ok {
		l.stats.add(func(s *Statistics) { s.Detections++ })
		tracking = l.track(ctx, det, status)
	}

	now := l.clock.Now()
	l.stats.observeCycle(now.Sub(start))
	l.sequence++
	snap := Snapshot{
		RunID:      l.RunID(),
		Sequence:   l.sequence,
		Timestamp:  now,
		Frame:      frame.Clone(),
		Detections: append([]marker.Detection(nil), detections...),
		Tracking:   tracking,
		Vehicle:    status,
		Statistics: l.stats.snapshot(now),
	}
	l.setLatest(snap)
	l.bus.Publish(ctx, snap)
	return nil
}

// track estimates the pose of the selected detection and forwards guidance for it.
func (l *Loop) track(ctx context.Context, det marker.Detection, status vehicle.Status) Tracking {
	p, err := l.estimator.Estimate(det.Corners[:], l.target.Length(), l.calib)
	if err == nil && !p.Valid() {
		err = &pose.EstimationError{Reason: "pose is not finite"}
	}
	if err != nil {
		l.poseFailed(ctx, det, err)
		return Tracking{State: NotFound}
	}
	l.poseFailures = 0
	l.stats.add(func(s *Statistics) { s.Poses++ })

	triple := guidance.Encode(p.Translation)
	eventType := movement.TypeTracked
	if l.link != nil && status.Connected {
		if err := l.link.SendGuidance(ctx, triple); err != nil {
			l.stats.add(func(s *Statistics) { s.SendFailures++ })
			l.sendWarn.Do(func() {
				l.logger.Warnw("failed to send landing target", "marker_id", det.ID, "error", err)
			})
		} else {
			l.stats.add(func(s *Statistics) { s.Sends++ })
			eventType = movement.TypeLandingTarget
		}
	}
	event := movement.Event{
		Type:      eventType,
		Timestamp: l.clock.Now(),
		MarkerID:  det.ID,
		Distance:  triple.Distance,
		AngleX:    triple.AngleX,
		AngleY:    triple.AngleY,
	}
	l.movements.Append(event)
	l.logger.Debugw("tracking marker",
		"marker_id", det.ID, "distance", triple.Distance, "angle_x", triple.AngleX, "angle_y", triple.AngleY)

	return Tracking{
		State:      Detected,
		MarkerID:   det.ID,
		Confidence: det.Confidence,
		Pose:       &p,
		Guidance:   &triple,
		Movement:   &event,
	}
}

// poseFailed counts a failed estimate. Reaching the threshold forces one camera reconnect and
// restarts the count whatever the reconnect outcome.
func (l *Loop) poseFailed(ctx context.Context, det marker.Detection, err error) {
	l.poseFailures++
	l.stats.add(func(s *Statistics) { s.PoseFailures++ })
	l.poseWarn.Do(func() {
		l.logger.Warnw("pose estimation failed", "marker_id", det.ID, "consecutive", l.poseFailures, "error", err)
	})
	if l.poseFailures < l.cfg.PoseFailureThreshold {
		return
	}
	l.logger.Warnw("too many consecutive pose failures; reconnecting camera",
		"consecutive", l.poseFailures, "threshold", l.cfg.PoseFailureThreshold)
	l.reconnectCamera(ctx, "consecutive pose failures")
	l.poseFailures = 0
}
