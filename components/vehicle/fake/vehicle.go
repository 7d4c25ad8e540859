// Package fake implements a simulated flight controller. It accepts guidance, drains a battery,
// acquires GPS satellites, and switches to LAND after enough landing targets.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/components/vehicle"
	"github.com/avioncargo/precisionland/guidance"
	"github.com/avioncargo/precisionland/logging"
)

// ModelName is the registry model of the simulated vehicle.
const ModelName = "fake"

const (
	fullBattery       = 12.6
	emptyBattery      = 10.5
	drainVoltsPerHour = 0.5
	maxSatellites     = 12
	satellitesPerSec  = 2
	minSatsFor3DFix   = 6
	heartbeatPeriod   = time.Second
)

// Config are the attributes of the simulated vehicle.
type Config struct {
	// LandAfter is the number of landing targets after which the mode becomes LAND.
	LandAfter int     `json:"land_after"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude_m"`
	// FailConnect makes every Connect fail, to exercise guidance-less operation.
	FailConnect bool `json:"fail_connect"`
}

// DefaultConfig is a hover over Quebec City that lands after 10 targets.
func DefaultConfig() Config {
	return Config{LandAfter: 10, Latitude: 46.7812, Longitude: -71.2826, Altitude: 100}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.LandAfter < 0 {
		return errors.Errorf("%s: land_after must not be negative", path)
	}
	if math.Abs(c.Latitude) > 90 || math.Abs(c.Longitude) > 180 {
		return errors.Errorf("%s: home position out of range", path)
	}
	return nil
}

// Vehicle is a simulated vehicle.Link.
type Vehicle struct {
	cfg    Config
	clock  clock.Clock
	logger logging.Logger

	mu          sync.Mutex
	connected   bool
	connectedAt time.Time
	commands    int
	mode        string
	last        guidance.Triple
}

// NewVehicle returns a disconnected simulated vehicle. A nil clock uses the wall clock.
func NewVehicle(cfg Config, clk clock.Clock, logger logging.Logger) (*Vehicle, error) {
	if err := cfg.Validate("vehicle.attributes"); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Vehicle{cfg: cfg, clock: clk, logger: logger, mode: "GUIDED"}, nil
}

// Connect simulates a link; the address is only logged.
func (v *Vehicle) Connect(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.cfg.FailConnect {
		return errors.Errorf("simulated vehicle refused connection on %q", address)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		v.connected = true
		v.connectedAt = v.clock.Now()
		v.logger.Infow("simulated vehicle connected", "address", address)
	}
	return nil
}

// SendGuidance records the target and counts it toward landing.
func (v *Vehicle) SendGuidance(ctx context.Context, t guidance.Triple) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return vehicle.ErrNotConnected
	}
	v.commands++
	v.last = t
	if v.cfg.LandAfter > 0 && v.commands > v.cfg.LandAfter && v.mode != "LAND" {
		v.mode = "LAND"
		v.logger.Infow("simulated vehicle switching to LAND", "commands", v.commands)
	}
	v.logger.Debugw("landing target",
		"angle_x", t.AngleX, "angle_y", t.AngleY, "distance", t.Distance, "command", v.commands)
	return nil
}

// Status derives the simulated telemetry from the time since connecting.
func (v *Vehicle) Status(ctx context.Context) vehicle.Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return vehicle.Disconnected()
	}
	runtime := v.clock.Since(v.connectedAt)
	secs := runtime.Seconds()

	satellites := maxSatellites
	if secs*satellitesPerSec < maxSatellites {
		satellites = int(secs * satellitesPerSec)
	}
	fix := 0
	if satellites >= minSatsFor3DFix {
		fix = 3
	}
	return vehicle.Status{
		Connected:      true,
		Mode:           v.mode,
		Armed:          false,
		BatteryVoltage: math.Max(emptyBattery, fullBattery-runtime.Hours()*drainVoltsPerHour),
		GPS:            vehicle.GPS{Satellites: satellites, FixType: fix},
		Position: vehicle.Position{
			Latitude:  v.cfg.Latitude + math.Sin(secs/60)*0.0001,
			Longitude: v.cfg.Longitude + math.Cos(secs/60)*0.0001,
			Altitude:  v.cfg.Altitude + math.Sin(secs/30)*5,
		},
		HeartbeatAge: runtime % heartbeatPeriod,
	}
}

// Commands returns how many landing targets were accepted and the most recent one.
func (v *Vehicle) Commands() (int, guidance.Triple) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.commands, v.last
}

// Disconnect drops the simulated link.
func (v *Vehicle) Disconnect(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connected {
		v.connected = false
		v.logger.Info("simulated vehicle disconnected")
	}
	return nil
}
