package transform

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/avioncargo/precisionland/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D
// scene to the 2D plane. Width and Height are optional; a 3×3 camera matrix does not carry them.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px,omitempty"`
	Height int     `json:"height_px,omitempty"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
	Skew   float64 `json:"skew,omitempty"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if !utils.AllFinite(params.Fx, params.Fy, params.Ppx, params.Ppy, params.Skew) {
		return NewNoIntrinsicsError(fmt.Sprintf("non-finite intrinsics %+v", *params))
	}
	if params.Width < 0 || params.Height < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PixelToNormalized maps a pixel to the normalized image plane (z = 1).
func (params *PinholeCameraIntrinsics) PixelToNormalized(px r2.Point) r2.Point {
	y := (px.Y - params.Ppy) / params.Fy
	x := (px.X - params.Ppx - params.Skew*y) / params.Fx
	return r2.Point{X: x, Y: y}
}

// NormalizedToPixel maps a point on the normalized image plane back to pixels.
func (params *PinholeCameraIntrinsics) NormalizedToPixel(pt r2.Point) r2.Point {
	return r2.Point{
		X: params.Fx*pt.X + params.Skew*pt.Y + params.Ppx,
		Y: params.Fy*pt.Y + params.Ppy,
	}
}

// PointToPixel projects a 3D point in the camera frame to a pixel. ok is false for points at or
// behind the camera center.
func (params *PinholeCameraIntrinsics) PointToPixel(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{X: -1, Y: -1}, false
	}
	return params.NormalizedToPixel(r2.Point{X: pt.X / pt.Z, Y: pt.Y / pt.Z}), true
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx s  ppx],
//
//	[0  fy ppy],
//	[0  0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(0, 1, params.Skew)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// NewPinholeCameraIntrinsicsFromMatrix reads fx, fy, ppx, ppy and skew out of a 3×3 camera
// matrix. The matrix must be finite with a bottom row of (0, 0, 1).
func NewPinholeCameraIntrinsicsFromMatrix(k mat.Matrix) (*PinholeCameraIntrinsics, error) {
	if k == nil {
		return nil, NewNoIntrinsicsError("camera matrix is nil")
	}
	rows, cols := k.Dims()
	if rows != 3 || cols != 3 {
		return nil, errors.Wrapf(ErrInvalidCalibration, "camera matrix must be 3x3, got %dx%d", rows, cols)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !utils.IsFinite(k.At(i, j)) {
				return nil, errors.Wrapf(ErrInvalidCalibration, "camera matrix element (%d,%d) is not finite: %v", i, j, k.At(i, j))
			}
		}
	}
	const eps = 1e-9
	if !utils.Float64AlmostEqual(k.At(1, 0), 0, eps) ||
		!utils.Float64AlmostEqual(k.At(2, 0), 0, eps) ||
		!utils.Float64AlmostEqual(k.At(2, 1), 0, eps) ||
		!utils.Float64AlmostEqual(k.At(2, 2), 1, eps) {
		return nil, errors.Wrap(ErrInvalidCalibration, "camera matrix must be upper triangular with k[2][2] == 1")
	}
	params := &PinholeCameraIntrinsics{
		Fx:   k.At(0, 0),
		Fy:   k.At(1, 1),
		Ppx:  k.At(0, 2),
		Ppy:  k.At(1, 2),
		Skew: k.At(0, 1),
	}
	if err := params.CheckValid(); err != nil {
		return nil, errors.Wrap(ErrInvalidCalibration, err.Error())
	}
	return params, nil
}
