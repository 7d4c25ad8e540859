package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/utils"
)

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is the OpenCV radial/tangential model, including the rational
	// k4..k6 terms when present.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// NoDistortionType is used when every coefficient is zero.
	NoDistortionType = DistortionType("none")
)

// Distorter maps points on the normalized image plane between their ideal and lens distorted
// positions.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	// Transform distorts an ideal normalized point.
	Transform(x, y float64) (float64, float64)
	// Undistort inverts Transform.
	Undistort(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion coefficients are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(ErrInvalidCalibration, "invalid distortion_coefficients: "+msg)
}

// NewDistorter returns the distorter for OpenCV ordered coefficients (k1, k2, p1, p2, k3, k4, k5,
// k6, ...). Coefficients after the eighth (thin prism and tilt terms) are kept in Parameters but
// not applied.
func NewDistorter(coefficients []float64) (Distorter, error) {
	if !utils.AllFinite(coefficients...) {
		return nil, InvalidDistortionError("coefficients must be finite")
	}
	allZero := true
	for _, c := range coefficients {
		if c != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return &noDistortion{n: len(coefficients)}, nil
	}
	return NewBrownConrady(coefficients)
}

type noDistortion struct {
	n int
}

func (nd *noDistortion) ModelType() DistortionType                   { return NoDistortionType }
func (nd *noDistortion) CheckValid() error                           { return nil }
func (nd *noDistortion) Parameters() []float64                       { return make([]float64, nd.n) }
func (nd *noDistortion) Transform(x, y float64) (float64, float64)   { return x, y }
func (nd *noDistortion) Undistort(xd, yd float64) (float64, float64) { return xd, yd }

// BrownConrady holds the OpenCV ordered lens coefficients.
type BrownConrady struct {
	RadialK1     float64 `json:"k1"`
	RadialK2     float64 `json:"k2"`
	TangentialP1 float64 `json:"p1"`
	TangentialP2 float64 `json:"p2"`
	RadialK3     float64 `json:"k3"`
	RationalK4   float64 `json:"k4"`
	RationalK5   float64 `json:"k5"`
	RationalK6   float64 `json:"k6"`

	extra []float64
}

// NewBrownConrady takes OpenCV ordered coefficients; missing values are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	padded := make([]float64, 8)
	copy(padded, inp)
	bc := &BrownConrady{
		padded[0], padded[1], padded[2], padded[3],
		padded[4], padded[5], padded[6], padded[7],
		nil,
	}
	if len(inp) > 8 {
		bc.extra = append([]float64{}, inp[8:]...)
	}
	return bc, bc.CheckValid()
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_coefficients not provided")
	}
	if !utils.AllFinite(bc.Parameters()...) {
		return InvalidDistortionError("coefficients must be finite")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the coefficients in OpenCV order.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	params := []float64{
		bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2,
		bc.RadialK3, bc.RationalK4, bc.RationalK5, bc.RationalK6,
	}
	return append(params, bc.extra...)
}

// Transform distorts an ideal normalized point:
//
//	radial = (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶)
//	x_d = x*radial + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y*radial + p1*(r² + 2*y²) + 2*p2*x*y
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6) /
		(1 + bc.RationalK4*r2 + bc.RationalK5*r4 + bc.RationalK6*r6)
	xd := x*radial + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radial + bc.TangentialP1*(r2+2*y*y) + 2*bc.TangentialP2*x*y
	return xd, yd
}

// Undistort finds the ideal point that Transform maps onto (xd, yd) using Newton-Raphson with a
// finite difference Jacobian, starting from the distorted point.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	const (
		maxIterations = 20
		tolerance     = 1e-12
		h             = 1e-7
	)

	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		fx, fy := bc.Transform(xu, yu)
		errX, errY := fx-xd, fy-yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		xph, yph := bc.Transform(xu+h, yu)
		xmh, ymh := bc.Transform(xu-h, yu)
		dxdDxu, dydDxu := (xph-xmh)/(2*h), (yph-ymh)/(2*h)
		xph, yph = bc.Transform(xu, yu+h)
		xmh, ymh = bc.Transform(xu, yu-h)
		dxdDyu, dydDyu := (xph-xmh)/(2*h), (yph-ymh)/(2*h)

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}
	return xu, yu
}

// UndistortPoint is Undistort over an r2.Point.
func UndistortPoint(d Distorter, pt r2.Point) r2.Point {
	x, y := d.Undistort(pt.X, pt.Y)
	return r2.Point{X: x, Y: y}
}

// DistortPoint is Transform over an r2.Point.
func DistortPoint(d Distorter, pt r2.Point) r2.Point {
	x, y := d.Transform(pt.X, pt.Y)
	return r2.Point{X: x, Y: y}
}
