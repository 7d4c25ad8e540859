// Package control runs the perception to guidance loop: capture a frame, find the target marker,
// estimate its pose, and forward the resulting landing guidance to the vehicle.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/observer"
	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/utils"
	"github.com/avioncargo/precisionland/vision/marker"
	"github.com/avioncargo/precisionland/vision/pose"
)

// ErrAlreadyRunning is returned by Start while the loop is running.
var ErrAlreadyRunning = errors.New("landing loop is already running")

// ErrStillStopping is returned by Start while the task of a previous run has not exited yet.
var ErrStillStopping = errors.New("previous landing loop run is still stopping")

// State is the loop lifecycle state.
type State string

// Loop states. There is no paused state.
const (
	Stopped State = "STOPPED"
	Running State = "RUNNING"
)

// Dependencies are the collaborators a loop drives. Vehicle is optional; without one the loop
// still tracks and logs the target.
type Dependencies struct {
	Camera         camera.Camera
	Detector       marker.Detector
	Estimator      pose.Estimator
	Calibration    *transform.Calibration
	Target         marker.Target
	Vehicle        vehicle.Link
	VehicleAddress string

	// Movements and Bus default to fresh instances when nil.
	Movements *movement.Log
	Bus       *observer.Bus[Snapshot]
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Loop holds the loop config and its collaborators.
type Loop struct {
	cfg    Config
	dt     time.Duration
	logger logging.Logger
	clock  clock.Clock

	cam            camera.Camera
	detector       marker.Detector
	estimator      pose.Estimator
	calib          *transform.Calibration
	target         marker.Target
	link           vehicle.Link
	vehicleAddress string

	movements *movement.Log
	bus       *observer.Bus[Snapshot]
	stats     cycleStats

	// mu serializes Start and Stop. The loop goroutine never takes it.
	mu      sync.Mutex
	workers utils.StoppableWorkers
	// stale holds a stopped run whose task outlived the stop timeout.
	stale utils.StoppableWorkers

	latestMu  sync.Mutex
	runID     string
	latest    Snapshot
	hasLatest bool

	// Owned by the loop goroutine.
	sequence     uint64
	poseFailures int

	captureWarn rate.Sometimes
	poseWarn    rate.Sometimes
	sendWarn    rate.Sometimes
	vehicleWarn rate.Sometimes
}

// NewLoop construct a new landing loop. Configuration and missing dependencies fail here, never
// once the loop is running.
func NewLoop(logger logging.Logger, cfg Config, deps Dependencies) (*Loop, error) {
	if err := cfg.Validate("loop"); err != nil {
		return nil, err
	}
	switch {
	case deps.Camera == nil:
		return nil, errors.New("landing loop requires a camera")
	case deps.Detector == nil:
		return nil, errors.New("landing loop requires a marker detector")
	case deps.Estimator == nil:
		return nil, errors.New("landing loop requires a pose estimator")
	case deps.Calibration == nil:
		return nil, errors.New("landing loop requires a calibration")
	case deps.Target.Length() <= 0:
		return nil, errors.Wrap(marker.ErrInvalidTarget, "landing loop requires a target built with marker.NewTarget")
	}

	l := &Loop{
		cfg:            cfg,
		dt:             cfg.Period(),
		logger:         logger,
		clock:          deps.Clock,
		cam:            deps.Camera,
		detector:       deps.Detector,
		estimator:      deps.Estimator,
		calib:          deps.Calibration,
		target:         deps.Target,
		link:           deps.Vehicle,
		vehicleAddress: deps.VehicleAddress,
		movements:      deps.Movements,
		bus:            deps.Bus,
		captureWarn:    rate.Sometimes{First: 3, Interval: 5 * time.Second},
		poseWarn:       rate.Sometimes{First: 3, Interval: 5 * time.Second},
		sendWarn:       rate.Sometimes{First: 3, Interval: 5 * time.Second},
		vehicleWarn:    rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.movements == nil {
		l.movements = movement.NewLog(movement.DefaultCapacity)
	}
	if l.bus == nil {
		l.bus = observer.NewBus[Snapshot](logger.Sublogger("observers"))
	}
	return l, nil
}

// Start spawns the loop task. It fails with ErrAlreadyRunning, leaving the running loop untouched,
// if the loop is already running. If the previous task never exited, Start waits up to the stop
// timeout for it and fails with ErrStillStopping when it is still stuck, so only one task ever
// drives the camera. Statistics reset on every start.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers != nil {
		return ErrAlreadyRunning
	}
	if l.stale != nil {
		if !l.stale.StopWithTimeout(l.cfg.StopTimeout) {
			return ErrStillStopping
		}
		l.stale = nil
	}

	runID := uuid.NewString()
	l.latestMu.Lock()
	l.runID = runID
	l.latestMu.Unlock()
	l.stats.reset(l.clock.Now())
	l.poseFailures = 0
	l.logger.Infow("starting landing loop",
		"run_id", runID, "frequency_hz", l.cfg.Frequency, "period", l.dt, "target", l.target.String())
	l.workers = utils.NewStoppableWorkers(l.run, l.superviseVehicle)
	return nil
}

// Stop cancels the loop task and waits up to the configured stop timeout for it to exit. After the
// wait the loop counts as stopped even if an in-flight camera or vehicle call has not returned.
// Stopping a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers == nil {
		return
	}
	if !l.workers.StopWithTimeout(l.cfg.StopTimeout) {
		l.logger.Warnw("landing loop did not exit in time; continuing shutdown", "timeout", l.cfg.StopTimeout)
		l.stale = l.workers
	}
	l.workers = nil
	l.logger.Infow("landing loop stopped", "run_id", l.RunID())
}

// State reports whether the loop is running.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers == nil {
		return Stopped
	}
	return Running
}

// RunID identifies the current or most recent run. It is empty before the first start.
func (l *Loop) RunID() string {
	l.latestMu.Lock()
	defer l.latestMu.Unlock()
	return l.runID
}

// Config returns the loop config.
func (l *Loop) Config() Config {
	return l.cfg
}

// Bus is where snapshots are published.
func (l *Loop) Bus() *observer.Bus[Snapshot] {
	return l.bus
}

// Movements is the guidance history.
func (l *Loop) Movements() *movement.Log {
	return l.movements
}

// Statistics returns the statistics of the current or most recent run.
func (l *Loop) Statistics() Statistics {
	return l.stats.snapshot(l.clock.Now())
}

// Latest returns the most recently published snapshot. ok is false until the first cycle
// completes.
func (l *Loop) Latest() (s Snapshot, ok bool) {
	l.latestMu.Lock()
	defer l.latestMu.Unlock()
	return l.latest, l.hasLatest
}

func (l *Loop) setLatest(s Snapshot) {
	l.latestMu.Lock()
	defer l.latestMu.Unlock()
	l.latest = s
	l.hasLatest = true
}

// run paces iterations at the target rate. Overrunning iterations run back to back; no frames
// are skipped to catch up.
func (l *Loop) run(ctx context.Context) {
	l.logger.Debugf("running loop on %1.4f Hz (%v)", l.cfg.Frequency, l.dt)
	for ctx.Err() == nil {
		start := l.clock.Now()
		l.runOnce(ctx)
		if !l.sleep(ctx, l.dt-l.clock.Since(start)) {
			return
		}
	}
}

// sleep waits d on the loop clock. It returns false if ctx ended first.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := l.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
