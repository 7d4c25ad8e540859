package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/avioncargo/precisionland/rimage/transform"
	"github.com/avioncargo/precisionland/utils"
)

// minSine is the smallest |sin| between two corner edges before the corners count as collinear.
const minSine = 1e-6

// PlanarEstimator solves the marker homography by DLT and decomposes it into a rotation and a
// translation.
type PlanarEstimator struct{}

// NewPlanarEstimator returns the default estimator.
func NewPlanarEstimator() *PlanarEstimator {
	return &PlanarEstimator{}
}

// Estimate implements Estimator.
func (pe *PlanarEstimator) Estimate(corners []r2.Point, markerLength float64, calib *transform.Calibration) (Pose, error) {
	if len(corners) != 4 {
		return Pose{}, newEstimationError("need 4 corners, got %d", len(corners))
	}
	if calib == nil {
		return Pose{}, newEstimationError("no calibration")
	}
	if !utils.IsFinite(markerLength) || markerLength <= 0 {
		return Pose{}, newEstimationError("marker length must be finite and positive, got %v", markerLength)
	}
	for i, c := range corners {
		if !utils.AllFinite(c.X, c.Y) {
			return Pose{}, newEstimationError("corner %d is not finite: %v", i, c)
		}
	}
	if err := checkNotCollinear(corners); err != nil {
		return Pose{}, err
	}

	var normalized [4]r2.Point
	for i, c := range corners {
		normalized[i] = calib.Undistort(c)
		if !utils.AllFinite(normalized[i].X, normalized[i].Y) {
			return Pose{}, newEstimationError("corner %d did not undistort", i)
		}
	}

	h, err := solveHomography(normalized)
	if err != nil {
		return Pose{}, err
	}
	rotation, translation, err := decompose(h)
	if err != nil {
		return Pose{}, err
	}

	pose := Pose{
		Translation: translation.Mul(markerLength),
		Rotation:    rotationToVector(rotation),
	}
	if !pose.Valid() || pose.Translation.Z <= 0 {
		return Pose{}, newEstimationError("degenerate solution %+v", pose.Translation)
	}
	pose.ReprojectionError = reprojectionError(pose, corners, markerLength, calib)
	return pose, nil
}

// checkNotCollinear rejects corner sets where any three corners lie on a line.
func checkNotCollinear(corners []r2.Point) error {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			for k := j + 1; k < 4; k++ {
				a := corners[j].Sub(corners[i])
				b := corners[k].Sub(corners[i])
				scale := a.Norm() * b.Norm()
				if scale == 0 || math.Abs(a.Cross(b)) <= minSine*scale {
					return newEstimationError("corners %d, %d and %d are collinear", i, j, k)
				}
			}
		}
	}
	return nil
}

// unitSquare is the marker outline for a side length of one, in detection order.
var unitSquare = [4]r2.Point{{X: -0.5, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 0.5, Y: -0.5}, {X: -0.5, Y: -0.5}}

// solveHomography finds H with image ~ H * [X Y 1] as the right singular vector of the DLT system
// belonging to the smallest singular value.
func solveHomography(image [4]r2.Point) (*mat.Dense, error) {
	a := mat.NewDense(8, 9, nil)
	for i, obj := range unitSquare {
		u, v := image[i].X, image[i].Y
		a.SetRow(2*i, []float64{obj.X, obj.Y, 1, 0, 0, 0, -u * obj.X, -u * obj.Y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, obj.X, obj.Y, 1, -v * obj.X, -v * obj.Y, -v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, newEstimationError("homography SVD did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.Col(nil, 8, &v)
	return mat.NewDense(3, 3, h), nil
}

// decompose splits H = λ[r1 r2 t] into a rotation and a translation in marker lengths.
func decompose(h *mat.Dense) (*mat.Dense, r3.Vector, error) {
	col := func(j int) r3.Vector {
		return r3.Vector{X: h.At(0, j), Y: h.At(1, j), Z: h.At(2, j)}
	}
	c1, c2, c3 := col(0), col(1), col(2)
	scale := (c1.Norm() + c2.Norm()) / 2
	if scale < 1e-12 {
		return nil, r3.Vector{}, newEstimationError("homography has no scale")
	}
	// The marker must be in front of the camera.
	if c3.Z < 0 {
		c1, c2, c3 = c1.Mul(-1), c2.Mul(-1), c3.Mul(-1)
	}
	r1 := c1.Normalize()
	r2v := c2.Normalize()
	r3v := r1.Cross(r2v)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rotation, err := nearestRotation(approx)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return rotation, c3.Mul(1 / scale), nil
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, newEstimationError("rotation SVD did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r, nil
}

// rotationToVector converts a rotation matrix to an axis-angle vector.
func rotationToVector(r mat.Matrix) r3.Vector {
	skew := r3.Vector{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}
	sinTheta := skew.Norm() / 2
	cosTheta := (r.At(0, 0) + r.At(1, 1) + r.At(2, 2) - 1) / 2
	theta := math.Atan2(sinTheta, cosTheta)

	switch {
	case theta < 1e-12:
		return r3.Vector{}
	case sinTheta > 1e-6:
		return skew.Mul(theta / (2 * sinTheta))
	}

	// Near pi the skew part vanishes. The symmetric part (R + Rᵀ)/2 - cos(θ)I equals
	// (1 - cos(θ)) k kᵀ, so its largest column is parallel to the axis k.
	var best r3.Vector
	for j := 0; j < 3; j++ {
		col := r3.Vector{
			X: (r.At(0, j)+r.At(j, 0))/2 - kronecker(0, j)*cosTheta,
			Y: (r.At(1, j)+r.At(j, 1))/2 - kronecker(1, j)*cosTheta,
			Z: (r.At(2, j)+r.At(j, 2))/2 - kronecker(2, j)*cosTheta,
		}
		if col.Norm() > best.Norm() {
			best = col
		}
	}
	axis := best.Normalize()
	if axis.Dot(skew) < 0 {
		axis = axis.Mul(-1)
	}
	return axis.Mul(theta)
}

func kronecker(i, j int) float64 {
	if i == j {
		return 1
	}
	return 0
}

func reprojectionError(p Pose, corners []r2.Point, markerLength float64, calib *transform.Calibration) float64 {
	var total float64
	for i, obj := range ObjectPoints(markerLength) {
		px, ok := calib.Project(p.Transform(obj))
		if !ok {
			return math.Inf(1)
		}
		total += px.Sub(corners[i]).Norm()
	}
	return total / 4
}
