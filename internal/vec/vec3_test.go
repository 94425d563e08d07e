package vec

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestSphericalDirection(t *testing.T) {
	s := Spherical{Yaw: 0, Pitch: 0, Distance: 5}
	assert.True(t, s.Point(mgl64.Vec3{}).ApproxEqualThreshold(mgl64.Vec3{5, 0, 0}, 1e-9))

	up := Direction(0, math.Pi/2)
	assert.True(t, up.ApproxEqualThreshold(mgl64.Vec3{0, 0, 1}, 1e-9))

	left := Direction(math.Pi/2, 0)
	assert.True(t, left.ApproxEqualThreshold(mgl64.Vec3{0, 1, 0}, 1e-9))
}

func TestYawPitchRoundTrip(t *testing.T) {
	for _, tc := range []struct{ yaw, pitch float64 }{
		{0, 0}, {1.2, 0.3}, {-2.5, -0.7}, {3.0, 1.2},
	} {
		yaw, pitch := YawPitch(Direction(tc.yaw, tc.pitch))
		assert.InDelta(t, tc.yaw, yaw, 1e-9)
		assert.InDelta(t, tc.pitch, pitch, 1e-9)
	}
}

func TestRotationForwardMatchesDirection(t *testing.T) {
	// Ориентация должна смотреть туда же, куда указывает сферическое направление
	for _, tc := range []struct{ yaw, pitch float64 }{
		{0, 0}, {math.Pi / 2, 0}, {0, math.Pi / 4}, {-1.1, -0.4}, {2.8, 0.9},
	} {
		fwd := Forward(Rotation(tc.yaw, tc.pitch))
		assert.True(t, fwd.ApproxEqualThreshold(Direction(tc.yaw, tc.pitch), 1e-9),
			"yaw=%v pitch=%v fwd=%v", tc.yaw, tc.pitch, fwd)
	}
}

func TestLookRotation(t *testing.T) {
	q := LookRotation(mgl64.Vec3{5, 0, 0}, mgl64.Vec3{}, mgl64.QuatIdent())
	assert.True(t, Forward(q).ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-9))

	fallback := Rotation(1, 0)
	same := LookRotation(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{1, 1, 1}, fallback)
	assert.Equal(t, fallback, same)
}

func TestOnSegment(t *testing.T) {
	a := mgl64.Vec3{0, 0, 0}
	b := mgl64.Vec3{10, 0, 0}
	assert.True(t, OnSegment(mgl64.Vec3{3, 0, 0}, a, b, 1e-9))
	assert.False(t, OnSegment(mgl64.Vec3{3, 0.1, 0}, a, b, 1e-6))
	assert.False(t, OnSegment(mgl64.Vec3{11, 0, 0}, a, b, 1e-6))
}

func TestAngles(t *testing.T) {
	assert.InDelta(t, -math.Pi/2, NormalizeAngle(3*math.Pi/2), 1e-9)
	assert.InDelta(t, math.Pi, NormalizeAngle(-math.Pi), 1e-9)
	assert.InDelta(t, 0.2, DeltaAngle(math.Pi-0.1, -math.Pi+0.1), 1e-9)
}

func TestInterpTo(t *testing.T) {
	// Нулевая скорость — мгновенный переход
	assert.Equal(t, 10.0, InterpTo(0, 10, 0.016, 0))

	v := InterpTo(0, 10, 0.1, 5)
	assert.InDelta(t, 5.0, v, 1e-9)

	// Большой шаг не перескакивает цель
	assert.InDelta(t, 10.0, InterpTo(0, 10, 1, 50), 1e-9)

	a := InterpAngleTo(math.Pi-0.1, -math.Pi+0.1, 1, 100)
	assert.InDelta(t, -math.Pi+0.1, a, 1e-9)
}

func TestInterpToAxes(t *testing.T) {
	current := mgl64.Vec3{}
	target := mgl64.Vec3{0, 10, 0}

	// Камера смотрит вдоль +Y: «вперёд» совпадает с мировым Y
	speed := mgl64.Vec3{5, 0, 0}
	got := InterpToAxes(current, target, math.Pi/2, 0.1, speed)
	assert.InDelta(t, 5.0, got[1], 1e-9)
	assert.InDelta(t, 0.0, got[0], 1e-9)

	// Та же скорость при yaw=0 действует по X, а Y без задержки
	got = InterpToAxes(current, target, 0, 0.1, speed)
	assert.InDelta(t, 10.0, got[1], 1e-9)
}
