package boom

import (
	"math"
	"math/rand"
	"testing"

	"github.com/annel0/camera-rig/internal/physics"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedProber всегда возвращает одно расстояние и считает вызовы
type fixedProber struct {
	distance float64
	calls    int
}

func (f *fixedProber) Probe(origin, direction mgl64.Vec3, maxDistance float64) float64 {
	f.calls++
	return math.Min(f.distance, maxDistance)
}

func TestSolveUnobstructed(t *testing.T) {
	solver := NewSolver(0.5)
	res := solver.Solve(mgl64.Vec3{}, vec.Spherical{Distance: 5}, &fixedProber{distance: math.Inf(1)})

	assert.True(t, res.Position.ApproxEqualThreshold(mgl64.Vec3{5, 0, 0}, 1e-9))
	assert.Equal(t, 5.0, res.Distance)
	assert.Equal(t, 5.0, res.ProbedDistance)
	assert.False(t, res.Collapsed)
}

func TestSolveObstructed(t *testing.T) {
	world := physics.NewWorld()
	world.Add(physics.NewBoxCollider("wall", mgl64.Vec3{2.5, 0, 0}, mgl64.Vec3{0.5, 3, 3}, physics.ChannelCamera))
	probe := physics.NewProbe(world, physics.ProbeConfig{Channel: physics.ChannelCamera}, "hero")

	res := NewSolver(0.5).Solve(mgl64.Vec3{}, vec.Spherical{Distance: 5}, probe)
	require.True(t, res.Collapsed)
	assert.InDelta(t, 2.0, res.Distance, 1e-9)
	assert.True(t, res.Position.ApproxEqualThreshold(mgl64.Vec3{2, 0, 0}, 1e-9))

	// Препятствие ближе минимума: штанга упирается в минимум
	res = NewSolver(3).Solve(mgl64.Vec3{}, vec.Spherical{Distance: 5}, probe)
	assert.True(t, res.Collapsed)
	assert.Equal(t, 3.0, res.Distance)
	assert.InDelta(t, 2.0, res.ProbedDistance, 1e-9)
}

func TestSolvePivotInsideGeometry(t *testing.T) {
	res := NewSolver(0.4).Solve(mgl64.Vec3{1, 1, 1}, vec.Spherical{Yaw: math.Pi / 2, Distance: 3}, &fixedProber{distance: 0})

	assert.True(t, res.Collapsed)
	assert.Equal(t, 0.4, res.Distance)
	assert.True(t, res.Position.ApproxEqualThreshold(mgl64.Vec3{1, 1.4, 1}, 1e-9))
}

func TestSolveFirstPersonSkipsProbe(t *testing.T) {
	p := &fixedProber{distance: 0}
	res := NewSolver(0.5).Solve(mgl64.Vec3{1, 2, 3}, vec.Spherical{Distance: 0}, p)

	assert.Equal(t, mgl64.Vec3{1, 2, 3}, res.Position)
	assert.Equal(t, 0, p.calls)
	assert.False(t, res.Collapsed)
}

func TestSolveDesiredBelowMinimum(t *testing.T) {
	res := NewSolver(2).Solve(mgl64.Vec3{}, vec.Spherical{Distance: 1}, &fixedProber{distance: 10})
	assert.Equal(t, 1.0, res.Distance, "минимум ограничен желаемой длиной")
}

func TestSolveReprobesEveryCall(t *testing.T) {
	p := &fixedProber{distance: 10}
	solver := NewSolver(0)
	for i := 0; i < 3; i++ {
		solver.Solve(mgl64.Vec3{}, vec.Spherical{Distance: 4}, p)
	}
	assert.Equal(t, 3, p.calls)
}

// Позиция всегда лежит на отрезке между опорой и желаемой точкой
func TestSolveStaysOnSegment(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		pivot := mgl64.Vec3{rng.Float64()*200 - 100, rng.Float64()*200 - 100, rng.Float64() * 50}
		offset := vec.Spherical{
			Yaw:      rng.Float64()*2*math.Pi - math.Pi,
			Pitch:    rng.Float64()*math.Pi - math.Pi/2,
			Distance: rng.Float64() * 10,
		}
		minDist := rng.Float64() * 2
		p := &fixedProber{distance: rng.Float64() * 12}

		res := NewSolver(minDist).Solve(pivot, offset, p)
		full := offset.Point(pivot)

		assert.True(t, vec.OnSegment(res.Position, pivot, full, 1e-6), "итерация %d", i)
		assert.LessOrEqual(t, res.Distance, offset.Distance+1e-12)
		assert.GreaterOrEqual(t, res.Distance, math.Min(minDist, offset.Distance)-1e-12)
	}
}
