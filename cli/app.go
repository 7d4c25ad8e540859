// Package cli implements the precisionland command line.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	// register models.
	_ "github.com/avioncargo/precisionland/components/register"
)

const (
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	runFlagNoVehicle = "no-vehicle"
	runFlagNoWeb     = "no-web"

	statsFlagDB    = "db"
	statsFlagPlot  = "plot"
	statsFlagLimit = "limit"
)

var app = &cli.App{
	Name:            "precisionland",
	Usage:           "guide a vehicle onto a fiducial marker",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "run",
			Usage:     "run the landing loop until interrupted",
			UsageText: "precisionland run [--config FILE] [--no-vehicle] [--no-web]",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:    generalFlagConfig,
					Aliases: []string{"c"},
					Usage:   "load configuration from `FILE`; without one a simulated run starts",
				},
				&cli.BoolFlag{
					Name:  runFlagNoVehicle,
					Usage: "track the marker without connecting to a vehicle",
				},
				&cli.BoolFlag{
					Name:  runFlagNoWeb,
					Usage: "do not serve the status API and stream",
				},
			},
			Action: RunAction,
		},
		{
			Name:            "calibration",
			Usage:           "work with camera calibration files",
			HideHelpCommand: true,
			Subcommands: []*cli.Command{
				{
					Name:      "check",
					Usage:     "validate a calibration file and print its intrinsics",
					ArgsUsage: "FILE",
					Action:    CalibrationCheckAction,
				},
				{
					Name:      "default",
					Usage:     "write the default calibration",
					ArgsUsage: "FILE",
					Action:    CalibrationDefaultAction,
				},
			},
		},
		{
			Name:   "ports",
			Usage:  "list serial ports a flight controller may be attached to",
			Action: PortsAction,
		},
		{
			Name:   "models",
			Usage:  "list the registered camera, detector, and vehicle models",
			Action: ModelsAction,
		},
		{
			Name:  "stats",
			Usage: "summarize a movement database",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     statsFlagDB,
					Required: true,
					Usage:    "movement database `FILE`",
				},
				&cli.PathFlag{
					Name:  statsFlagPlot,
					Usage: "also plot distance over time to a PNG `FILE`",
				},
				&cli.IntFlag{
					Name:  statsFlagLimit,
					Value: 10000,
					Usage: "plot at most this many of the newest movements",
				},
			},
			Action: StatsAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
