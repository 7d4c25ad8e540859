package control

import (
	"time"

	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/utils"
)

// Config holds the loop cadence and recovery tuning.
type Config struct {
	Frequency            float64       `json:"frequency_hz"`
	CameraBackoff        time.Duration `json:"camera_backoff"`
	ErrorPause           time.Duration `json:"error_pause"`
	PoseFailureThreshold int           `json:"pose_failure_threshold"`
	VehicleRetryInterval time.Duration `json:"vehicle_retry_interval"`
	StopTimeout          time.Duration `json:"stop_timeout"`
}

// DefaultConfig runs at 30Hz and reconnects the camera after 10 consecutive pose failures.
func DefaultConfig() Config {
	return Config{
		Frequency:            30,
		CameraBackoff:        500 * time.Millisecond,
		ErrorPause:           100 * time.Millisecond,
		PoseFailureThreshold: 10,
		VehicleRetryInterval: 5 * time.Second,
		StopTimeout:          2 * time.Second,
	}
}

// Validate ensures all parts of the config are valid.
func (c Config) Validate(path string) error {
	if !utils.IsFinite(c.Frequency) || c.Frequency <= 0 || c.Frequency > 200 {
		return utils.NewConfigValidationError(path, errors.New("loop frequency shouldn't be 0 or above 200Hz"))
	}
	if c.CameraBackoff < 0 || c.ErrorPause < 0 || c.VehicleRetryInterval < 0 {
		return utils.NewConfigValidationError(path, errors.New("durations must not be negative"))
	}
	if c.StopTimeout <= 0 {
		return utils.NewConfigValidationError(path, errors.New("stop_timeout must be positive"))
	}
	if c.PoseFailureThreshold < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("pose_failure_threshold must be at least 1, got %d", c.PoseFailureThreshold))
	}
	return nil
}

// Period is the target duration of one iteration.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Frequency)
}
