package fake

import (
	"context"

	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/registry"
)

func init() {
	registry.RegisterVehicle(ModelName, registry.Registration[registry.CreateVehicle]{
		Constructor: func(
			ctx context.Context,
			deps registry.Dependencies,
			conf config.Component,
			logger logging.Logger,
		) (vehicle.Link, error) {
			cfg, err := config.NativeAttributes(conf, DefaultConfig())
			if err != nil {
				return nil, err
			}
			return NewVehicle(cfg, deps.Clock, logger)
		},
	})
}
