package registry

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/testutils/inject"
	"github.com/avioncargo/precisionland/vision/marker"
)

func TestRegistry(t *testing.T) {
	cf := func(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (camera.Camera, error) {
		return &inject.Camera{}, nil
	}
	df := func(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (marker.Detector, error) {
		return &inject.Detector{}, nil
	}
	vf := func(ctx context.Context, deps Dependencies, conf config.Component, logger logging.Logger) (vehicle.Link, error) {
		return &inject.Link{}, nil
	}

	// test panics
	test.That(t, func() { RegisterCamera("x", Registration[CreateCamera]{}) }, test.ShouldPanic)
	test.That(t, func() { RegisterDetector("x", Registration[CreateDetector]{}) }, test.ShouldPanic)
	test.That(t, func() { RegisterVehicle("x", Registration[CreateVehicle]{}) }, test.ShouldPanic)

	RegisterCamera("x", Registration[CreateCamera]{Constructor: cf})
	RegisterDetector("x", Registration[CreateDetector]{Constructor: df, Simulated: true})
	RegisterVehicle("x", Registration[CreateVehicle]{Constructor: vf})

	test.That(t, func() { RegisterCamera("x", Registration[CreateCamera]{Constructor: cf}) }, test.ShouldPanic)

	reg, err := CameraLookup("x")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reg.Constructor, test.ShouldNotBeNil)
	test.That(t, reg.Simulated, test.ShouldBeFalse)
	dreg, err := DetectorLookup("x")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dreg.Simulated, test.ShouldBeTrue)
	_, err = VehicleLookup("x")
	test.That(t, err, test.ShouldBeNil)

	_, err = CameraLookup("y")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown camera model "y"`)

	test.That(t, CameraModels(), test.ShouldContain, "x")
	test.That(t, IsSimulated("x", "x"), test.ShouldBeTrue)
	test.That(t, IsSimulated("x", "y"), test.ShouldBeFalse)

	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	cam, err := NewCamera(ctx, Dependencies{}, config.Component{Model: "x"}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam, test.ShouldNotBeNil)

	_, err = NewDetector(ctx, Dependencies{}, config.Component{Model: "x"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "requires a simulation scene")

	link, err := NewVehicle(ctx, Dependencies{}, config.Component{Model: "x"}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, link, test.ShouldNotBeNil)

	_, err = NewVehicle(ctx, Dependencies{}, config.Component{Model: "nope"}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
