package transform

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// LoadCalibration reads and validates a JSON calibration file of the form
//
//	{"camera_matrix": [[fx, 0, cx], [0, fy, cy], [0, 0, 1]], "distortion_coefficients": [k1, k2, p1, p2, k3]}
func LoadCalibration(path string) (*Calibration, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening calibration file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var calib Calibration
	if err := json.NewDecoder(f).Decode(&calib); err != nil {
		return nil, errors.Wrapf(err, "error parsing calibration file %q", path)
	}
	return &calib, nil
}

// SaveCalibration writes the calibration as indented JSON, creating parent directories.
func SaveCalibration(path string, calib *Calibration) error {
	if calib == nil {
		return errors.New("cannot save a nil calibration")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "error creating calibration directory")
	}
	data, err := json.MarshalIndent(calib, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, append(data, '\n'), 0o600), "error writing calibration file")
}
