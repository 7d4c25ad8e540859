// Package registry operates the global registry of camera, detector, and vehicle models.
package registry

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/sim"
	"github.com/avioncargo/precisionland/utils"
	"github.com/avioncargo/precisionland/vision/marker"
)

// Dependencies are the shared pieces a constructor may need. Scene is only set when a simulated
// model is configured.
type Dependencies struct {
	Calibration *transform.Calibration
	Scene       *sim.Scene
	Clock       clock.Clock
}

type (
	// A CreateCamera creates a camera from a given config.
	CreateCamera func(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (camera.Camera, error)

	// A CreateDetector creates a marker detector from a given config.
	CreateDetector func(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (marker.Detector, error)

	// A CreateVehicle creates a vehicle link from a given config.
	CreateVehicle func(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (vehicle.Link, error)
)

// Registration stores a constructor (mandatory) and whether the model is simulated.
type Registration[T any] struct {
	Constructor T
	// Simulated models read the shared sim.Scene.
	Simulated bool
}

type table[T any] struct {
	kind string
	mu   sync.RWMutex
	regs map[string]Registration[T]
}

func newTable[T any](kind string) *table[T] {
	return &table[T]{kind: kind, regs: map[string]Registration[T]{}}
}

func (t *table[T]) register(model string, reg Registration[T], isNil bool) {
	if isNil {
		panic(errors.Errorf("cannot register a nil constructor for %s model %s", t.kind, model))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, old := t.regs[model]; old {
		panic(errors.Errorf("trying to register two %ss with same model %s", t.kind, model))
	}
	t.regs[model] = reg
}

func (t *table[T]) lookup(model string) (Registration[T], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	reg, ok := t.regs[model]
	if !ok {
		return reg, utils.NewModelNotFoundError(t.kind, model)
	}
	return reg, nil
}

func (t *table[T]) models() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.regs))
}

// all registries
var (
	cameraRegistry   = newTable[CreateCamera](camera.SubtypeName)
	detectorRegistry = newTable[CreateDetector](marker.SubtypeName)
	vehicleRegistry  = newTable[CreateVehicle](vehicle.SubtypeName)
)

// RegisterCamera registers a camera model to a creator.
func RegisterCamera(model string, reg Registration[CreateCamera]) {
	cameraRegistry.register(model, reg, reg.Constructor == nil)
}

// RegisterDetector registers a detector model to a creator.
func RegisterDetector(model string, reg Registration[CreateDetector]) {
	detectorRegistry.register(model, reg, reg.Constructor == nil)
}

// RegisterVehicle registers a vehicle model to a creator.
func RegisterVehicle(model string, reg Registration[CreateVehicle]) {
	vehicleRegistry.register(model, reg, reg.Constructor == nil)
}

// CameraLookup looks up a camera registration by model.
func CameraLookup(model string) (Registration[CreateCamera], error) {
	return cameraRegistry.lookup(model)
}

// DetectorLookup looks up a detector registration by model.
func DetectorLookup(model string) (Registration[CreateDetector], error) {
	return detectorRegistry.lookup(model)
}

// VehicleLookup looks up a vehicle registration by model.
func VehicleLookup(model string) (Registration[CreateVehicle], error) {
	return vehicleRegistry.lookup(model)
}

// CameraModels lists the registered camera models in order.
func CameraModels() []string {
	return cameraRegistry.models()
}

// DetectorModels lists the registered detector models in order.
func DetectorModels() []string {
	return detectorRegistry.models()
}

// VehicleModels lists the registered vehicle models in order.
func VehicleModels() []string {
	return vehicleRegistry.models()
}

// NewCamera builds the configured camera.
func NewCamera(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (camera.Camera, error) {
	reg, err := CameraLookup(conf.Model)
	if err != nil {
		return nil, err
	}
	if err := checkScene(reg.Simulated, deps, conf.Model); err != nil {
		return nil, err
	}
	return reg.Constructor(ctx, deps, conf, logger)
}

// NewDetector builds the configured detector.
func NewDetector(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (marker.Detector, error) {
	reg, err := DetectorLookup(conf.Model)
	if err != nil {
		return nil, err
	}
	if err := checkScene(reg.Simulated, deps, conf.Model); err != nil {
		return nil, err
	}
	return reg.Constructor(ctx, deps, conf, logger)
}

// NewVehicle builds the configured vehicle link.
func NewVehicle(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (vehicle.Link, error) {
	reg, err := VehicleLookup(conf.Model)
	if err != nil {
		return nil, err
	}
	return reg.Constructor(ctx, deps, conf, logger)
}

func checkScene(simulated bool, deps Dependencies, model string) error {
	if simulated && deps.Scene == nil {
		return errors.Errorf("model %q requires a simulation scene", model)
	}
	return nil
}

// IsSimulated reports whether any of the configured camera and detector models reads the
// simulation scene.
func IsSimulated(cameraModel, detectorModel string) bool {
	if reg, err := CameraLookup(cameraModel); err == nil && reg.Simulated {
		return true
	}
	if reg, err := DetectorLookup(detectorModel); err == nil && reg.Simulated {
		return true
	}
	return false
}
