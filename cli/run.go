package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/avioncargo/precisionland/config"
	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/landing"
	"github.com/avioncargo/precisionland/logging"
)

const (
	statusInterval  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// RunAction builds the configured components, runs the landing loop until SIGINT or SIGTERM, and
// prints the run statistics. It exits 1 when the camera never opens.
func RunAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("precisionland")
	cfg, err := loadConfig(ctx, c.Path(generalFlagConfig), logger)
	if err != nil {
		return err
	}
	closeLog, err := configureLogger(logger, cfg.Log, c.Bool(generalFlagDebug))
	if err != nil {
		return err
	}
	defer closeLog()

	sys, err := landing.New(ctx, cfg, landing.Options{
		NoVehicle: c.Bool(runFlagNoVehicle),
		NoWeb:     c.Bool(runFlagNoWeb),
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sys.Close(shutdownCtx); err != nil {
			logger.Warnw("error during shutdown", "error", err)
		}
		printf(c.App.Writer, "%s", statisticsTable(sys.Loop.Statistics()))
	}()

	if err := sys.OpenCamera(ctx, cfg.StartupAttempts); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := sys.ConnectVehicle(ctx); err != nil {
		warningf(c.App.ErrWriter, "vehicle not connected, retrying in the background: %v", err)
	}
	if err := sys.Start(ctx); err != nil {
		return err
	}
	if addr := sys.WebAddress(); addr != "" {
		printf(c.App.Writer, "status at http://%s/api/status, stream at http://%s/stream.mjpeg", addr, addr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reportStatus(gctx, sys.Loop, logger)
		return nil
	})
	return g.Wait()
}

func loadConfig(ctx context.Context, path string, logger logging.Logger) (*config.Config, error) {
	if path == "" {
		logger.Info("no config given; running the simulation")
		cfg := config.Default()
		return cfg, cfg.Ensure()
	}
	return config.Read(ctx, path, logger)
}

// configureLogger applies the configured level and adds the rotating file, if any. The returned
// func closes the file.
func configureLogger(logger logging.Logger, cfg config.Log, debug bool) (func(), error) {
	level, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = logging.DEBUG
	}
	logger.SetLevel(level)
	if cfg.File == "" {
		return func() {}, nil
	}
	appender := logging.NewFileAppender(logging.FileAppenderConfig{Path: cfg.File, MaxBackups: 3})
	logger.AddAppender(appender)
	return func() {
		//nolint:errcheck
		logger.Sync()
		//nolint:errcheck
		appender.Close()
	}, nil
}

func reportStatus(ctx context.Context, loop *control.Loop, logger logging.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := loop.Statistics()
			logger.Infow("landing loop status",
				"state", loop.State(),
				"fps", fmt.Sprintf("%.1f", stats.FPS),
				"detection_rate", fmt.Sprintf("%.2f", stats.DetectionRate),
				"sends", stats.Sends,
				"p95", stats.Latency.P95)
		}
	}
}

func statisticsTable(stats control.Statistics) string {
	t := table.NewWriter()
	t.SetTitle("Run statistics")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Elapsed", stats.Elapsed.Round(time.Millisecond)},
		{"Frames", stats.Frames},
		{"FPS", fmt.Sprintf("%.1f", stats.FPS)},
		{"Detections", stats.Detections},
		{"Detection rate", fmt.Sprintf("%.1f%%", 100*stats.DetectionRate)},
		{"Poses", stats.Poses},
		{"Pose failures", stats.PoseFailures},
		{"Pose success rate", fmt.Sprintf("%.1f%%", 100*stats.PoseSuccessRate)},
		{"Capture failures", stats.CaptureFailures},
		{"Camera reconnects", fmt.Sprintf("%d/%d", stats.Reconnects, stats.ReconnectAttempts)},
		{"Vehicle reconnects", fmt.Sprintf("%d/%d", stats.VehicleReconnects, stats.VehicleAttempts)},
		{"Guidance sent", stats.Sends},
		{"Send failures", stats.SendFailures},
		{"Unexpected errors", stats.UnexpectedErrors},
		{"Latency p50", stats.Latency.P50},
		{"Latency p95", stats.Latency.P95},
		{"Latency max", stats.Latency.Max},
	})
	return t.Render()
}
