// Package influx exports loop snapshots to InfluxDB as time series points.
package influx

import (
	"context"
	"net/url"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/observer"
	"github.com/avioncargo/precisionland/utils"
)

// DefaultMeasurement is the measurement name points are written under.
const DefaultMeasurement = "precision_landing"

// Config configures the exporter. Export is disabled while URL is empty.
type Config struct {
	URL           string        `json:"url,omitempty"`
	Token         string        `json:"token,omitempty"`
	Org           string        `json:"org,omitempty"`
	Bucket        string        `json:"bucket,omitempty"`
	Measurement   string        `json:"measurement,omitempty"`
	BatchSize     uint          `json:"batch_size,omitempty"`
	FlushInterval time.Duration `json:"flush_interval,omitempty"`
}

// DefaultConfig leaves export disabled.
func DefaultConfig() Config {
	return Config{
		Measurement:   DefaultMeasurement,
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Enabled reports whether a server is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Validate ensures all parts of the config are valid.
func (c Config) Validate(path string) error {
	if !c.Enabled() {
		return nil
	}
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "invalid url"))
	}
	if c.Org == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "org")
	}
	if c.Bucket == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "bucket")
	}
	if c.Measurement == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "measurement")
	}
	if c.FlushInterval < time.Millisecond {
		return utils.NewConfigValidationError(path, errors.Errorf("flush_interval must be at least 1ms, got %v", c.FlushInterval))
	}
	return nil
}

// Exporter subscribes to the loop through a single slot mailbox and writes the newest snapshot
// as a point whenever it wakes up. Points that arrive faster than the writer are dropped.
type Exporter struct {
	cfg     Config
	logger  logging.Logger
	client  influxdb2.Client
	writer  influxdb2api.WriteAPI
	latest  *observer.Latest[control.Snapshot]
	workers utils.StoppableWorkers

	written  atomic.Uint64
	failures atomic.Uint64
	errWarn  rate.Sometimes
}

// NewExporter connects a non-blocking writer and starts the export worker.
func NewExporter(cfg Config, logger logging.Logger) (*Exporter, error) {
	if err := cfg.Validate("influx"); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, errors.New("influx export is not configured")
	}
	batch := cfg.BatchSize
	if batch == 0 {
		batch = 1
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())))

	e := &Exporter{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		writer:  client.WriteAPI(cfg.Org, cfg.Bucket),
		latest:  observer.NewLatest[control.Snapshot](),
		errWarn: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
	// errors must be requested before the first write
	errs := e.writer.Errors()
	e.workers = utils.NewStoppableWorkers(e.export, func(ctx context.Context) { e.drainErrors(ctx, errs) })
	logger.Infow("exporting telemetry", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return e, nil
}

// Observer is what to subscribe to the loop's bus.
func (e *Exporter) Observer() observer.Observer[control.Snapshot] {
	return e.latest
}

func (e *Exporter) export(ctx context.Context) {
	for {
		snap, err := e.latest.Next(ctx)
		if err != nil {
			return
		}
		e.writer.WritePoint(Point(e.cfg.Measurement, snap))
		e.written.Add(1)
	}
}

func (e *Exporter) drainErrors(ctx context.Context, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			e.failures.Add(1)
			e.errWarn.Do(func() {
				e.logger.Warnw("cannot write telemetry to influxdb", "error", err, "failures", e.failures.Load())
			})
		}
	}
}

// Point converts one snapshot. Tracking fields are only present on detected cycles.
func Point(measurement string, snap control.Snapshot) *write.Point {
	p := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("run_id", snap.RunID).
		AddTag("state", string(snap.Tracking.State)).
		AddField("sequence", snap.Sequence).
		AddField("detections", len(snap.Detections)).
		AddField("fps", snap.Statistics.FPS).
		AddField("detection_rate", snap.Statistics.DetectionRate).
		AddField("latency_p95_ms", float64(snap.Statistics.Latency.P95)/float64(time.Millisecond)).
		AddField("vehicle_connected", snap.Vehicle.Connected).
		AddField("battery_voltage", snap.Vehicle.BatteryVoltage).
		SetTime(snap.Timestamp)
	if snap.Vehicle.Mode != "" {
		p.AddTag("mode", snap.Vehicle.Mode)
	}
	if g := snap.Tracking.Guidance; g != nil {
		p.AddField("marker_id", snap.Tracking.MarkerID).
			AddField("distance", g.Distance).
			AddField("angle_x", g.AngleX).
			AddField("angle_y", g.AngleY)
	}
	return p.SortTags()
}

// Counts reports how many points were handed to the writer and how many batch writes failed.
func (e *Exporter) Counts() (written, failures uint64) {
	return e.written.Load(), e.failures.Load()
}

// Close flushes pending points and disconnects.
func (e *Exporter) Close() {
	e.workers.Stop()
	if snap, ok := e.latest.TryNext(); ok {
		e.writer.WritePoint(Point(e.cfg.Measurement, snap))
		e.written.Add(1)
	}
	e.writer.Flush()
	e.client.Close()
	written, failures := e.Counts()
	e.logger.Infow("telemetry export stopped", "points", written, "failures", failures)
}
