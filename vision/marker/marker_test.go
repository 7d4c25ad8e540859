package marker

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func intPtr(v int) *int {
	return &v
}

func TestNewTarget(t *testing.T) {
	target, err := NewTarget(intPtr(7), 0.05)
	test.That(t, err, test.ShouldBeNil)
	id, ok := target.ID()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, id, test.ShouldEqual, 7)
	test.That(t, target.Length(), test.ShouldEqual, 0.05)
	test.That(t, target.Matches(7), test.ShouldBeTrue)
	test.That(t, target.Matches(8), test.ShouldBeFalse)
	test.That(t, target.String(), test.ShouldEqual, "marker 7 (0.050m)")

	anyTarget, err := NewTarget(nil, 0.2)
	test.That(t, err, test.ShouldBeNil)
	_, ok = anyTarget.ID()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, anyTarget.Matches(0), test.ShouldBeTrue)
	test.That(t, anyTarget.Matches(249), test.ShouldBeTrue)
}

func TestNewTargetRejectsInvalidLength(t *testing.T) {
	for _, length := range []float64{0, -0.05, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := NewTarget(nil, length)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrInvalidTarget), test.ShouldBeTrue)
	}
	_, err := NewTarget(intPtr(-1), 0.05)
	test.That(t, errors.Is(err, ErrInvalidTarget), test.ShouldBeTrue)

	test.That(t, func() { MustTarget(nil, 0) }, test.ShouldPanic)
}

func TestSelect(t *testing.T) {
	dets := []Detection{{ID: 3}, {ID: 5}, {ID: 3, Confidence: 0.5}}

	sel, ok := Select(dets, MustTarget(intPtr(3), 0.05))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, sel, test.ShouldResemble, dets[0])

	sel, ok = Select(dets, MustTarget(intPtr(5), 0.05))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, sel.ID, test.ShouldEqual, 5)

	sel, ok = Select(dets, MustTarget(nil, 0.05))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, sel.ID, test.ShouldEqual, 3)

	_, ok = Select(dets, MustTarget(intPtr(9), 0.05))
	test.That(t, ok, test.ShouldBeFalse)

	_, ok = Select(nil, MustTarget(nil, 0.05))
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, len(Filter(dets, MustTarget(intPtr(3), 0.05))), test.ShouldEqual, 2)
	test.That(t, len(Filter(dets, MustTarget(nil, 0.05))), test.ShouldEqual, 3)
}

func TestDetectionCenter(t *testing.T) {
	det := Detection{Corners: [4]r2.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}}
	test.That(t, det.Center(), test.ShouldResemble, r2.Point{X: 1, Y: 1})
}
