// Package config defines the structures to configure a precision landing run.
package config

import (
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/sim"
	"github.com/avioncargo/precisionland/telemetry/influx"
	"github.com/avioncargo/precisionland/utils"
	"github.com/avioncargo/precisionland/vision/marker"
	"github.com/avioncargo/precisionland/web"
)

// DefaultStartupAttempts is how many times the camera is opened before a run gives up.
const DefaultStartupAttempts = 3

// A Config describes the configuration of a landing run.
type Config struct {
	Camera          Component      `json:"camera"`
	Detector        Component      `json:"detector"`
	Vehicle         Vehicle        `json:"vehicle"`
	Target          Target         `json:"target"`
	CalibrationFile string         `json:"calibration_file,omitempty"`
	Loop            control.Config `json:"loop"`
	Simulation      sim.Config     `json:"simulation"`
	Movements       Movements      `json:"movements"`
	Web             web.Config     `json:"web"`
	Influx          influx.Config  `json:"influx"`
	Log             Log            `json:"log"`
	StartupAttempts int            `json:"startup_attempts"`

	// ConfigFilePath is the path this config was read from, if any.
	ConfigFilePath string `json:"-"`
}

// Default returns the simulated setup: fake camera, detector, and vehicle tracking any 5cm marker
// at 30Hz through the default calibration.
func Default() *Config {
	return &Config{
		Camera:          Component{Model: "fake"},
		Detector:        Component{Model: "fake"},
		Vehicle:         Vehicle{Component: Component{Model: "fake"}, Address: "auto"},
		Target:          Target{MarkerLength: marker.DefaultMarkerLength},
		Loop:            control.DefaultConfig(),
		Simulation:      sim.DefaultConfig(),
		Movements:       Movements{Capacity: movement.DefaultCapacity},
		Web:             web.DefaultConfig(),
		Influx:          influx.DefaultConfig(),
		Log:             Log{Level: "info"},
		StartupAttempts: DefaultStartupAttempts,
	}
}

// Ensure ensures all parts of the config are valid.
func (c *Config) Ensure() error {
	if err := c.Camera.Validate("camera"); err != nil {
		return err
	}
	if err := c.Detector.Validate("detector"); err != nil {
		return err
	}
	if err := c.Vehicle.Validate("vehicle"); err != nil {
		return err
	}
	if _, err := c.Target.Build(); err != nil {
		return utils.NewConfigValidationError("target", err)
	}
	if err := c.Loop.Validate("loop"); err != nil {
		return err
	}
	if err := c.Simulation.Validate("simulation"); err != nil {
		return err
	}
	if err := c.Movements.Validate("movements"); err != nil {
		return err
	}
	if err := c.Web.Validate("web"); err != nil {
		return err
	}
	if err := c.Influx.Validate("influx"); err != nil {
		return err
	}
	if err := c.Log.Validate("log"); err != nil {
		return err
	}
	if c.StartupAttempts < 1 {
		return utils.NewConfigValidationError("startup_attempts", errors.New("must be at least 1"))
	}
	return nil
}

// Calibration loads the calibration file, or returns the default calibration when none is set.
func (c *Config) Calibration() (*transform.Calibration, error) {
	if c.CalibrationFile == "" {
		return transform.DefaultCalibration(), nil
	}
	return transform.LoadCalibration(c.CalibrationFile)
}

// Component is the model and attributes of a pluggable part.
type Component struct {
	Model      string                 `json:"model"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Component) Validate(path string) error {
	if c.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	return nil
}

// Vehicle is the flight controller link. A disabled vehicle runs the loop without sending
// guidance.
type Vehicle struct {
	Component
	Address  string `json:"address,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (v *Vehicle) Validate(path string) error {
	if v.Disabled {
		return nil
	}
	return v.Component.Validate(path)
}

// Target selects the marker to land on.
type Target struct {
	// MarkerID is nil to track any marker.
	MarkerID     *int    `json:"marker_id,omitempty"`
	MarkerLength float64 `json:"marker_length_m"`
}

// Build validates the target.
func (t Target) Build() (marker.Target, error) {
	return marker.NewTarget(t.MarkerID, t.MarkerLength)
}

// Movements configures the in-memory movement log and its optional database.
type Movements struct {
	Capacity int    `json:"capacity"`
	Database string `json:"database,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (m *Movements) Validate(path string) error {
	if m.Capacity < 1 {
		return utils.NewConfigValidationError(path, errors.Errorf("capacity must be at least 1, got %d", m.Capacity))
	}
	return nil
}

// Log configures the process logger.
type Log struct {
	Level string `json:"level"`
	// File enables a rotating log file next to the console output.
	File string `json:"file,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (l *Log) Validate(path string) error {
	if _, err := logging.LevelFromString(l.Level); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}
