package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/avioncargo/precisionland/components/vehicle/mavlink"
	"github.com/avioncargo/precisionland/registry"
)

// PortsAction lists the serial ports and marks the ones "auto" tries.
func PortsAction(c *cli.Context) error {
	ports, err := mavlink.SerialPorts()
	if err != nil {
		return err
	}
	candidates, err := mavlink.CandidatePorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		printf(c.App.Writer, "no serial ports found")
		return nil
	}
	auto := make(map[string]bool, len(candidates))
	for _, p := range candidates {
		auto[p] = true
	}
	for _, p := range ports {
		if auto[p] {
			printf(c.App.Writer, "%s (auto)", p)
			continue
		}
		printf(c.App.Writer, "%s", p)
	}
	return nil
}

// ModelsAction lists every registered model.
func ModelsAction(c *cli.Context) error {
	printf(c.App.Writer, "cameras:   %v", registry.CameraModels())
	printf(c.App.Writer, "detectors: %v", registry.DetectorModels())
	printf(c.App.Writer, "vehicles:  %v", registry.VehicleModels())
	return nil
}
