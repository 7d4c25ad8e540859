// Package mavlink implements a vehicle link to an ArduPilot flight controller over MAVLink 2.
// Guidance is sent as LANDING_TARGET; status comes from HEARTBEAT, SYS_STATUS, GPS_RAW_INT, and
// GLOBAL_POSITION_INT.
package mavlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bluenviron/gomavlib/v2"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v2/pkg/message"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/guidance"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/utils"
)

// ModelName is the registry model of the MAVLink link.
const ModelName = "mavlink"

// Config are the attributes of a MAVLink link.
type Config struct {
	Baud             int           `json:"baud"`
	SystemID         int           `json:"system_id"`
	ConnectTimeout   time.Duration `json:"connect_timeout"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout"`
}

// DefaultConfig waits 5s for the first heartbeat and drops the link after 3s without one.
func DefaultConfig() Config {
	return Config{
		Baud:             DefaultBaud,
		SystemID:         10,
		ConnectTimeout:   5 * time.Second,
		HeartbeatTimeout: 3 * time.Second,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.Baud <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "baud")
	}
	if c.SystemID < 1 || c.SystemID > 255 {
		return utils.NewConfigValidationError(path, errors.Errorf("system_id must be in [1, 255], got %d", c.SystemID))
	}
	if c.ConnectTimeout <= 0 || c.HeartbeatTimeout <= 0 {
		return utils.NewConfigValidationError(path, errors.New("timeouts must be positive"))
	}
	return nil
}

// telemetry is the latest state reported by the flight controller.
type telemetry struct {
	lastHeartbeat time.Time
	mode          string
	armed         bool
	voltage       float64
	gps           vehicle.GPS
	position      vehicle.Position
}

// Link is a MAVLink vehicle.Link.
type Link struct {
	cfg    Config
	clock  clock.Clock
	logger logging.Logger
	// discover lists serial ports for the auto address.
	discover func() ([]string, error)

	mu        sync.Mutex
	node      *gomavlib.Node
	workers   utils.StoppableWorkers
	connected string
	state     telemetry
	heartbeat chan struct{}
}

// NewLink returns a disconnected link.
func NewLink(cfg Config, logger logging.Logger) (*Link, error) {
	if err := cfg.Validate("vehicle.attributes"); err != nil {
		return nil, err
	}
	return &Link{cfg: cfg, clock: clock.New(), logger: logger, discover: CandidatePorts}, nil
}

// Connect opens the first endpoint of address that delivers a heartbeat within the connect
// timeout. Connecting a live link is a no-op.
func (l *Link) Connect(ctx context.Context, address string) error {
	if l.Status(ctx).Connected {
		return nil
	}
	//nolint:errcheck
	l.Disconnect(ctx)

	endpoints, err := parseAddress(address, l.cfg.Baud, l.discover)
	if err != nil {
		return err
	}
	var errs error
	for _, ep := range endpoints {
		if err := l.connectEndpoint(ctx, ep); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, ep.label))
			if ctx.Err() != nil {
				return errs
			}
			continue
		}
		return nil
	}
	return errors.Wrapf(errs, "cannot connect to vehicle at %q", address)
}

func (l *Link) connectEndpoint(ctx context.Context, ep endpoint) error {
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{ep.conf},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: byte(l.cfg.SystemID),
	})
	if err != nil {
		return err
	}

	heartbeat := make(chan struct{})
	l.mu.Lock()
	l.node = node
	l.state = telemetry{mode: "UNKNOWN"}
	l.heartbeat = heartbeat
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		l.readEvents(ctx, node)
	})
	l.mu.Unlock()

	timeout := l.clock.Timer(l.cfg.ConnectTimeout)
	defer timeout.Stop()
	select {
	case <-heartbeat:
		l.mu.Lock()
		l.connected = ep.label
		l.mu.Unlock()
		l.logger.Infow("vehicle connected", "endpoint", ep.label)
		return nil
	case <-timeout.C:
		err = errors.Errorf("no heartbeat within %v", l.cfg.ConnectTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	//nolint:errcheck
	l.Disconnect(ctx)
	return err
}

// readEvents consumes node events until the node closes.
func (l *Link) readEvents(ctx context.Context, node *gomavlib.Node) {
	events := node.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch e := evt.(type) {
			case *gomavlib.EventFrame:
				l.handleMessage(node, e.Message())
			case *gomavlib.EventChannelOpen:
				l.logger.Debugw("mavlink channel open", "channel", e.Channel)
			case *gomavlib.EventChannelClose:
				l.logger.Debugw("mavlink channel closed", "channel", e.Channel)
			}
		}
	}
}

// handleMessage folds one message into the telemetry. Messages from a node that has since been
// replaced are dropped.
func (l *Link) handleMessage(from *gomavlib.Node, msg message.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from != l.node {
		return
	}
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		if m.Type == common.MAV_TYPE_GCS {
			return
		}
		l.state.lastHeartbeat = l.clock.Now()
		l.state.mode = modeName(m.CustomMode)
		l.state.armed = m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		if l.heartbeat != nil {
			close(l.heartbeat)
			l.heartbeat = nil
		}
	case *common.MessageSysStatus:
		l.state.voltage = float64(m.VoltageBattery) / 1000
	case *common.MessageGpsRawInt:
		l.state.gps = vehicle.GPS{Satellites: int(m.SatellitesVisible), FixType: int(m.FixType)}
	case *common.MessageGlobalPositionInt:
		l.state.position = vehicle.Position{
			Latitude:  float64(m.Lat) / 1e7,
			Longitude: float64(m.Lon) / 1e7,
			Altitude:  float64(m.Alt) / 1000,
		}
	}
}

// SendGuidance writes a LANDING_TARGET message to every open channel.
func (l *Link) SendGuidance(ctx context.Context, t guidance.Triple) error {
	l.mu.Lock()
	node := l.node
	alive := l.aliveLocked()
	l.mu.Unlock()
	if node == nil || !alive {
		return vehicle.ErrNotConnected
	}
	if !utils.AllFinite(t.AngleX, t.AngleY, t.Distance) {
		return &vehicle.SendError{Err: errors.New("guidance is not finite")}
	}
	node.WriteMessageAll(landingTarget(t, l.clock.Now()))
	return nil
}

func landingTarget(t guidance.Triple, now time.Time) *common.MessageLandingTarget {
	return &common.MessageLandingTarget{
		TimeUsec:  uint64(now.UnixMicro()),
		TargetNum: 0,
		Frame:     common.MAV_FRAME_BODY_NED,
		AngleX:    float32(t.AngleX),
		AngleY:    float32(t.AngleY),
		Distance:  float32(t.Distance),
	}
}

// Status reports the latest telemetry. The link counts as disconnected once no heartbeat has
// arrived for the heartbeat timeout.
func (l *Link) Status(ctx context.Context) vehicle.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.node == nil || !l.aliveLocked() {
		return vehicle.Disconnected()
	}
	return vehicle.Status{
		Connected:      true,
		Mode:           l.state.mode,
		Armed:          l.state.armed,
		BatteryVoltage: l.state.voltage,
		GPS:            l.state.gps,
		Position:       l.state.position,
		HeartbeatAge:   l.clock.Since(l.state.lastHeartbeat),
	}
}

func (l *Link) aliveLocked() bool {
	return !l.state.lastHeartbeat.IsZero() && l.clock.Since(l.state.lastHeartbeat) < l.cfg.HeartbeatTimeout
}

// Disconnect closes the node. Closing the node ends its event stream, which stops the reader.
func (l *Link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	node, workers, label := l.node, l.workers, l.connected
	l.node, l.workers, l.connected, l.heartbeat = nil, nil, "", nil
	l.state = telemetry{}
	l.mu.Unlock()

	if node == nil {
		return nil
	}
	node.Close()
	if workers != nil {
		workers.Stop()
	}
	if label != "" {
		l.logger.Infow("vehicle disconnected", "endpoint", label)
	}
	return nil
}

var arduCopterModes = map[uint32]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	9:  "LAND",
	11: "DRIFT",
	13: "SPORT",
	14: "FLIP",
	15: "AUTOTUNE",
	16: "POSHOLD",
	17: "BRAKE",
	18: "THROW",
	19: "AVOID_ADSB",
	20: "GUIDED_NOGPS",
	21: "SMART_RTL",
}

func modeName(customMode uint32) string {
	if name, ok := arduCopterModes[customMode]; ok {
		return name
	}
	return fmt.Sprintf("MODE_%d", customMode)
}
