package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/logging"
)

// Read reads a config from the given file. Environment variables in the file are expanded first,
// so secrets like the InfluxDB token can stay out of it.
func Read(ctx context.Context, filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file the
// reader originated from. Missing fields keep their defaults.
func FromReader(ctx context.Context, originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}

	cfg := Default()
	if err := decode(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot decode config %q", originalPath)
	}
	cfg.ConfigFilePath = originalPath
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	logger.CDebugw(ctx, "config loaded", "path", originalPath, "camera", cfg.Camera.Model,
		"detector", cfg.Detector.Model, "vehicle", cfg.Vehicle.Model)
	return cfg, nil
}

// NativeAttributes decodes a component's attributes over defaults.
func NativeAttributes[T any](conf Component, defaults T) (T, error) {
	out := defaults
	if len(conf.Attributes) == 0 {
		return out, nil
	}
	if err := decode(conf.Attributes, &out); err != nil {
		return defaults, errors.Wrapf(err, "cannot decode %q attributes", conf.Model)
	}
	return out, nil
}

// decode maps a generic JSON object onto result. Durations may be given as strings like "500ms"
// or as integer nanoseconds. Unknown keys are errors.
func decode(input map[string]interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      result,
		Squash:      true,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
