package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/avioncargo/precisionland/rimage/transform"
)

// CalibrationCheckAction validates a calibration file and prints what it holds.
func CalibrationCheckAction(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	calib, err := transform.LoadCalibration(path)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s is valid", path)
	printf(c.App.Writer, "%s", calibrationTable(calib))
	return nil
}

// CalibrationDefaultAction writes the default calibration to a file.
func CalibrationDefaultAction(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	if err := transform.SaveCalibration(path, transform.DefaultCalibration()); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote default calibration to %s", path)
	return nil
}

func fileArg(c *cli.Context) (string, error) {
	if c.Args().Len() != 1 {
		return "", errors.Errorf("expected exactly one FILE argument, got %d", c.Args().Len())
	}
	return c.Args().First(), nil
}

func calibrationTable(calib *transform.Calibration) string {
	intrinsics := calib.Intrinsics()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Parameter", "Value"})
	t.AppendRows([]table.Row{
		{"fx", intrinsics.Fx},
		{"fy", intrinsics.Fy},
		{"cx", intrinsics.Ppx},
		{"cy", intrinsics.Ppy},
	})
	names := []string{"k1", "k2", "p1", "p2", "k3", "k4", "k5", "k6"}
	for i, k := range calib.DistortionCoefficients() {
		name := fmt.Sprintf("d%d", i)
		if i < len(names) {
			name = names[i]
		}
		t.AppendRow(table.Row{name, k})
	}
	return t.Render()
}
