// Package boom рассчитывает положение камеры на штанге с учётом препятствий.
package boom

import (
	"math"

	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// Prober — запрос свободного расстояния вдоль направления (physics.Probe)
type Prober interface {
	Probe(origin, direction mgl64.Vec3, maxDistance float64) float64
}

// ProberFunc позволяет использовать функцию как Prober
type ProberFunc func(origin, direction mgl64.Vec3, maxDistance float64) float64

// Probe реализует Prober
func (f ProberFunc) Probe(origin, direction mgl64.Vec3, maxDistance float64) float64 {
	return f(origin, direction, maxDistance)
}

// Result — результат расчёта штанги на один тик. Не сохраняется между тиками.
type Result struct {
	Position       mgl64.Vec3 // итоговая позиция камеры
	Direction      mgl64.Vec3 // единичное направление от опоры к камере
	ProbedDistance float64    // свободное расстояние по данным зонда
	Distance       float64    // фактическая длина штанги
	Collapsed      bool       // геометрия укоротила штангу
}

// Solver укорачивает штангу при пересечении с геометрией
type Solver struct {
	MinDistance float64 // камера не подходит к опоре ближе этого расстояния
}

// NewSolver создаёт решатель с минимальной длиной штанги
func NewSolver(minDistance float64) Solver {
	return Solver{MinDistance: math.Max(0, minDistance)}
}

// Solve зондирует геометрию от опоры вдоль желаемого смещения.
// Зонд вызывается на каждом вызове: геометрия и персонаж движутся непрерывно.
func (s Solver) Solve(pivot mgl64.Vec3, offset vec.Spherical, p Prober) Result {
	dir := offset.Direction()
	desired := math.Max(0, offset.Distance)

	// Вид от первого лица: штанги нет
	if desired == 0 {
		return Result{Position: pivot, Direction: dir}
	}

	probed := desired
	if p != nil {
		probed = mgl64.Clamp(p.Probe(pivot, dir, desired), 0, desired)
	}

	// Минимум не может превышать желаемую длину
	floor := math.Min(s.MinDistance, desired)
	dist := mgl64.Clamp(math.Min(probed, desired), floor, desired)

	return Result{
		Position:       pivot.Add(dir.Mul(dist)),
		Direction:      dir,
		ProbedDistance: probed,
		Distance:       dist,
		Collapsed:      probed < desired,
	}
}
