package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Оси мира: правая система координат, Z смотрит вверх
var (
	AxisX = mgl64.Vec3{1, 0, 0}
	AxisY = mgl64.Vec3{0, 1, 0}
	AxisZ = mgl64.Vec3{0, 0, 1}
)

// Spherical описывает смещение относительно точки опоры в сферических координатах.
// Yaw отсчитывается от +X вокруг +Z, Pitch — угол возвышения над плоскостью XY.
type Spherical struct {
	Yaw      float64
	Pitch    float64
	Distance float64
}

// Direction возвращает единичный вектор направления смещения
func (s Spherical) Direction() mgl64.Vec3 {
	return Direction(s.Yaw, s.Pitch)
}

// Point возвращает точку pivot + Direction*Distance
func (s Spherical) Point(pivot mgl64.Vec3) mgl64.Vec3 {
	return pivot.Add(s.Direction().Mul(s.Distance))
}

// Direction возвращает единичный вектор для пары углов
func Direction(yaw, pitch float64) mgl64.Vec3 {
	sy, cy := math.Sincos(yaw)
	sp, cp := math.Sincos(pitch)
	return mgl64.Vec3{cp * cy, cp * sy, sp}
}

// YawPitch восстанавливает углы по направлению. Нулевой вектор даёт (0, 0).
func YawPitch(dir mgl64.Vec3) (yaw, pitch float64) {
	horizontal := math.Hypot(dir[0], dir[1])
	if horizontal == 0 && dir[2] == 0 {
		return 0, 0
	}
	return math.Atan2(dir[1], dir[0]), math.Atan2(dir[2], horizontal)
}

// Rotation возвращает ориентацию, у которой ось +X направлена вдоль (yaw, pitch).
// Сначала поворот вокруг Y (возвышение), затем вокруг Z (рыскание).
func Rotation(yaw, pitch float64) mgl64.Quat {
	qYaw := mgl64.QuatRotate(yaw, AxisZ)
	qPitch := mgl64.QuatRotate(-pitch, AxisY)
	return qYaw.Mul(qPitch).Normalize()
}

// Forward возвращает направление взгляда для ориентации
func Forward(q mgl64.Quat) mgl64.Vec3 {
	return q.Rotate(AxisX)
}

// LookRotation возвращает ориентацию взгляда из from в to.
// При совпадении точек возвращает fallback.
func LookRotation(from, to mgl64.Vec3, fallback mgl64.Quat) mgl64.Quat {
	delta := to.Sub(from)
	if delta.LenSqr() < 1e-12 {
		return fallback
	}
	yaw, pitch := YawPitch(delta)
	return Rotation(yaw, pitch)
}

// YawOnly поворачивает вектор на yaw вокруг оси Z
func YawOnly(v mgl64.Vec3, yaw float64) mgl64.Vec3 {
	s, c := math.Sincos(yaw)
	return mgl64.Vec3{v[0]*c - v[1]*s, v[0]*s + v[1]*c, v[2]}
}

// OnSegment проверяет, лежит ли p на отрезке [a, b] с точностью eps
func OnSegment(p, a, b mgl64.Vec3, eps float64) bool {
	ab := b.Sub(a)
	lenSqr := ab.LenSqr()
	if lenSqr < eps*eps {
		return p.Sub(a).Len() <= eps
	}
	t := p.Sub(a).Dot(ab) / lenSqr
	if t < -eps || t > 1+eps {
		return false
	}
	closest := a.Add(ab.Mul(t))
	return closest.Sub(p).Len() <= eps
}

// Lerp линейно интерполирует векторы
func Lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
