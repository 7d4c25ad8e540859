// Package landing assembles a landing run from its configuration: the registered camera,
// detector, and vehicle models, the control loop, and the observers that record, export, and
// serve what the loop produces.
package landing

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/movement/store"
	"github.com/avioncargo/precisionland/registry"
	"github.com/avioncargo/precisionland/sim"
	"github.com/avioncargo/precisionland/telemetry/influx"
	"github.com/avioncargo/precisionland/vision/marker"
	"github.com/avioncargo/precisionland/vision/pose"
	"github.com/avioncargo/precisionland/web"
)

// Options override parts of the configuration from the command line.
type Options struct {
	NoVehicle bool
	NoWeb     bool
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// System is one assembled landing run.
type System struct {
	cfg    *config.Config
	logger logging.Logger

	Camera   camera.Camera
	Detector marker.Detector
	// Vehicle is nil when the vehicle is disabled.
	Vehicle vehicle.Link
	Loop    *control.Loop
	// Store is nil unless movements.database is set.
	Store *store.Store

	recorder *store.Recorder
	exporter *influx.Exporter
	web      *web.Server
}

type contextCloser interface {
	Close(ctx context.Context) error
}

// New builds every part named by cfg. Nothing is opened or started yet except the movement
// database and the telemetry writer.
func New(ctx context.Context, cfg *config.Config, opts Options, logger logging.Logger) (s *System, err error) {
	calib, err := cfg.Calibration()
	if err != nil {
		return nil, err
	}
	target, err := cfg.Target.Build()
	if err != nil {
		return nil, err
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	deps := registry.Dependencies{Calibration: calib, Clock: clk}
	if registry.IsSimulated(cfg.Camera.Model, cfg.Detector.Model) {
		deps.Scene, err = sim.NewScene(cfg.Simulation, calib, clk.Now())
		if err != nil {
			return nil, err
		}
		logger.Infow("simulation enabled", "marker_id", cfg.Simulation.MarkerID, "depth_m", cfg.Simulation.Depth)
	}

	s = &System{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, s.Close(ctx))
			s = nil
		}
	}()

	if s.Camera, err = registry.NewCamera(ctx, deps, cfg.Camera, logger.Sublogger("camera")); err != nil {
		return s, err
	}
	if s.Detector, err = registry.NewDetector(ctx, deps, cfg.Detector, logger.Sublogger("detector")); err != nil {
		return s, err
	}
	if !cfg.Vehicle.Disabled && !opts.NoVehicle {
		if s.Vehicle, err = registry.NewVehicle(ctx, deps, cfg.Vehicle.Component, logger.Sublogger("vehicle")); err != nil {
			return s, err
		}
	}

	loopDeps := control.Dependencies{
		Camera:         s.Camera,
		Detector:       s.Detector,
		Estimator:      pose.NewPlanarEstimator(),
		Calibration:    calib,
		Target:         target,
		Vehicle:        s.Vehicle,
		VehicleAddress: cfg.Vehicle.Address,
		Movements:      movement.NewLog(cfg.Movements.Capacity),
		Clock:          clk,
	}
	if s.Loop, err = control.NewLoop(logger.Sublogger("loop"), cfg.Loop, loopDeps); err != nil {
		return s, err
	}

	var history web.MovementStore
	if cfg.Movements.Database != "" {
		if s.Store, err = store.Open(ctx, cfg.Movements.Database, logger.Sublogger("store")); err != nil {
			return s, err
		}
		s.recorder = store.NewRecorder(s.Store, store.DefaultQueueSize, logger.Sublogger("recorder"))
		if err = s.Loop.Bus().Subscribe(s.recorder); err != nil {
			return s, err
		}
		history = s.Store
	}
	if cfg.Influx.Enabled() {
		if s.exporter, err = influx.NewExporter(cfg.Influx, logger.Sublogger("influx")); err != nil {
			return s, err
		}
		if err = s.Loop.Bus().Subscribe(s.exporter.Observer()); err != nil {
			return s, err
		}
	}
	if !cfg.Web.Disabled && !opts.NoWeb {
		if s.web, err = web.NewServer(cfg.Web, s.Loop, history, logger.Sublogger("web")); err != nil {
			return s, err
		}
	}
	return s, nil
}

// OpenCamera tries to open the camera up to attempts times, pausing for the loop's camera backoff
// between tries.
func (s *System) OpenCamera(ctx context.Context, attempts int) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = s.Camera.Open(ctx); err == nil {
			return nil
		}
		s.logger.Warnw("cannot open camera", "attempt", i, "of", attempts, "error", err)
		if i < attempts && !goutils.SelectContextOrWait(ctx, s.cfg.Loop.CameraBackoff) {
			return ctx.Err()
		}
	}
	return errors.Wrapf(err, "camera did not open after %d attempts", attempts)
}

// ConnectVehicle connects the vehicle link, if there is one. The loop keeps retrying in the
// background when this fails.
func (s *System) ConnectVehicle(ctx context.Context) error {
	if s.Vehicle == nil {
		return nil
	}
	return s.Vehicle.Connect(ctx, s.cfg.Vehicle.Address)
}

// Start serves the web API, if enabled, and starts the loop.
func (s *System) Start(ctx context.Context) error {
	if s.web != nil {
		if err := s.web.Start(ctx); err != nil {
			return err
		}
	}
	return s.Loop.Start()
}

// WebAddress is where the web API listens, or empty when it is not serving.
func (s *System) WebAddress() string {
	if s.web == nil || s.web.Addr() == nil {
		return ""
	}
	return s.web.Addr().String()
}

// Close stops the loop and releases everything New built, observers before the devices they
// observe.
func (s *System) Close(ctx context.Context) error {
	var err error
	if s.Loop != nil {
		s.Loop.Stop()
	}
	if s.web != nil {
		err = multierr.Combine(err, s.web.Close(ctx))
	}
	if s.exporter != nil {
		s.exporter.Close()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.Store != nil {
		err = multierr.Combine(err, s.Store.Close())
	}
	if s.Vehicle != nil {
		err = multierr.Combine(err, s.Vehicle.Disconnect(ctx))
	}
	if c, ok := s.Detector.(contextCloser); ok {
		err = multierr.Combine(err, c.Close(ctx))
	}
	if s.Camera != nil {
		err = multierr.Combine(err, s.Camera.Close(ctx))
	}
	return err
}
