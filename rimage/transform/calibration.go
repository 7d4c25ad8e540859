package transform

import (
	"encoding/json"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidCalibration is wrapped by every calibration construction and loading failure.
var ErrInvalidCalibration = errors.New("invalid calibration")

// DistortionCoefficients are OpenCV ordered lens coefficients. In JSON they may be written flat
// (`[k1, k2, ...]`) or as a single row (`[[k1, k2, ...]]`).
type DistortionCoefficients []float64

// UnmarshalJSON accepts both the N and 1×N shapes.
func (dc *DistortionCoefficients) UnmarshalJSON(data []byte) error {
	var flat []float64
	if err := json.Unmarshal(data, &flat); err == nil {
		*dc = flat
		return nil
	}
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return errors.Wrap(ErrInvalidCalibration, "distortion_coefficients must be a list of numbers or a single row of numbers")
	}
	coefficients, err := NewDistortionCoefficients(rows)
	if err != nil {
		return err
	}
	*dc = coefficients
	return nil
}

// NewDistortionCoefficients flattens a 1×N distortion row.
func NewDistortionCoefficients(rows [][]float64) (DistortionCoefficients, error) {
	switch len(rows) {
	case 0:
		return DistortionCoefficients{}, nil
	case 1:
		return append(DistortionCoefficients{}, rows[0]...), nil
	default:
		return nil, errors.Wrapf(ErrInvalidCalibration, "distortion_coefficients must be 1xN, got %d rows", len(rows))
	}
}

// Calibration is a validated camera matrix plus lens distortion. It can only be built through
// NewCalibration, so holding one means both parts are finite and correctly shaped.
type Calibration struct {
	intrinsics   PinholeCameraIntrinsics
	coefficients DistortionCoefficients
	distorter    Distorter
}

// NewCalibration validates a 3×3 camera matrix and distortion coefficients.
func NewCalibration(cameraMatrix [][]float64, coefficients DistortionCoefficients) (*Calibration, error) {
	if len(cameraMatrix) != 3 {
		return nil, errors.Wrapf(ErrInvalidCalibration, "camera matrix must be 3x3, got %d rows", len(cameraMatrix))
	}
	data := make([]float64, 0, 9)
	for i, row := range cameraMatrix {
		if len(row) != 3 {
			return nil, errors.Wrapf(ErrInvalidCalibration, "camera matrix must be 3x3, row %d has %d columns", i, len(row))
		}
		data = append(data, row...)
	}
	return NewCalibrationFromMatrix(mat.NewDense(3, 3, data), coefficients)
}

// NewCalibrationFromMatrix is NewCalibration for a gonum matrix.
func NewCalibrationFromMatrix(cameraMatrix mat.Matrix, coefficients DistortionCoefficients) (*Calibration, error) {
	intrinsics, err := NewPinholeCameraIntrinsicsFromMatrix(cameraMatrix)
	if err != nil {
		return nil, err
	}
	distorter, err := NewDistorter(coefficients)
	if err != nil {
		return nil, err
	}
	return &Calibration{
		intrinsics:   *intrinsics,
		coefficients: append(DistortionCoefficients{}, coefficients...),
		distorter:    distorter,
	}, nil
}

// DefaultCalibration is a 640x480 camera with a 600px focal length and no distortion. It is used
// when no calibration file has been produced for the camera.
func DefaultCalibration() *Calibration {
	calib, err := NewCalibration(
		[][]float64{{600, 0, 320}, {0, 600, 240}, {0, 0, 1}},
		DistortionCoefficients{0, 0, 0, 0, 0},
	)
	if err != nil {
		panic(err)
	}
	return calib
}

// Intrinsics returns a copy of the pinhole parameters.
func (c *Calibration) Intrinsics() PinholeCameraIntrinsics {
	return c.intrinsics
}

// CameraMatrix returns a new 3×3 camera matrix.
func (c *Calibration) CameraMatrix() *mat.Dense {
	return c.intrinsics.GetCameraMatrix()
}

// DistortionCoefficients returns a copy of the coefficients as given.
func (c *Calibration) DistortionCoefficients() DistortionCoefficients {
	return append(DistortionCoefficients{}, c.coefficients...)
}

// Distorter returns the lens model.
func (c *Calibration) Distorter() Distorter {
	return c.distorter
}

// Undistort maps a distorted pixel to the ideal normalized image plane (z = 1).
func (c *Calibration) Undistort(px r2.Point) r2.Point {
	return UndistortPoint(c.distorter, c.intrinsics.PixelToNormalized(px))
}

// Project maps a camera frame point to a distorted pixel. ok is false for points at or behind the
// camera center.
func (c *Calibration) Project(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{X: -1, Y: -1}, false
	}
	distorted := DistortPoint(c.distorter, r2.Point{X: pt.X / pt.Z, Y: pt.Y / pt.Z})
	return c.intrinsics.NormalizedToPixel(distorted), true
}

// calibrationJSON is the persisted form.
type calibrationJSON struct {
	CameraMatrix           [][]float64            `json:"camera_matrix"`
	DistortionCoefficients DistortionCoefficients `json:"distortion_coefficients"`
	Width                  int                    `json:"width_px,omitempty"`
	Height                 int                    `json:"height_px,omitempty"`
}

// MarshalJSON writes the camera matrix as nested rows and the distortion as a flat list.
func (c *Calibration) MarshalJSON() ([]byte, error) {
	k := c.CameraMatrix()
	rows := make([][]float64, 3)
	for i := range rows {
		rows[i] = mat.Row(nil, i, k)
	}
	return json.Marshal(calibrationJSON{
		CameraMatrix:           rows,
		DistortionCoefficients: c.DistortionCoefficients(),
		Width:                  c.intrinsics.Width,
		Height:                 c.intrinsics.Height,
	})
}

// UnmarshalJSON validates while decoding, so a decoded Calibration upholds the same invariants
// as one from NewCalibration.
func (c *Calibration) UnmarshalJSON(data []byte) error {
	var raw calibrationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		if errors.Is(err, ErrInvalidCalibration) {
			return err
		}
		return errors.Wrap(ErrInvalidCalibration, err.Error())
	}
	if raw.CameraMatrix == nil {
		return errors.Wrap(ErrInvalidCalibration, "camera_matrix is required")
	}
	if raw.DistortionCoefficients == nil {
		return errors.Wrap(ErrInvalidCalibration, "distortion_coefficients is required")
	}
	parsed, err := NewCalibration(raw.CameraMatrix, raw.DistortionCoefficients)
	if err != nil {
		return err
	}
	if raw.Width < 0 || raw.Height < 0 {
		return errors.Wrapf(ErrInvalidCalibration, "invalid size (%d, %d)", raw.Width, raw.Height)
	}
	parsed.intrinsics.Width = raw.Width
	parsed.intrinsics.Height = raw.Height
	*c = *parsed
	return nil
}
