package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// NormalizeAngle приводит угол к диапазону (-π, π]
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// DeltaAngle возвращает кратчайшую знаковую разницу to - from
func DeltaAngle(from, to float64) float64 {
	return NormalizeAngle(to - from)
}

// InterpTo плавно приближает current к target со скоростью speed.
// speed <= 0 означает мгновенный переход.
func InterpTo(current, target, dt, speed float64) float64 {
	if speed <= 0 {
		return target
	}
	dist := target - current
	if dist*dist < 1e-8 {
		return target
	}
	step := dist * mgl64.Clamp(dt*speed, 0, 1)
	return current + step
}

// InterpAngleTo как InterpTo, но по кратчайшей дуге
func InterpAngleTo(current, target, dt, speed float64) float64 {
	if speed <= 0 {
		return NormalizeAngle(target)
	}
	delta := DeltaAngle(current, target)
	return NormalizeAngle(current + delta*mgl64.Clamp(dt*speed, 0, 1))
}

// VInterpTo плавно приближает вектор к цели
func VInterpTo(current, target mgl64.Vec3, dt, speed float64) mgl64.Vec3 {
	if speed <= 0 {
		return target
	}
	dist := target.Sub(current)
	if dist.LenSqr() < 1e-8 {
		return target
	}
	return current.Add(dist.Mul(mgl64.Clamp(dt*speed, 0, 1)))
}

// InterpToAxes выполняет покомпонентную задержку в системе координат, повёрнутой на yaw.
// Так задержка «вперёд/вбок/вверх» не зависит от направления камеры.
func InterpToAxes(current, target mgl64.Vec3, yaw, dt float64, speed mgl64.Vec3) mgl64.Vec3 {
	localCurrent := YawOnly(current, -yaw)
	localTarget := YawOnly(target, -yaw)

	local := mgl64.Vec3{
		InterpTo(localCurrent[0], localTarget[0], dt, speed[0]),
		InterpTo(localCurrent[1], localTarget[1], dt, speed[1]),
		InterpTo(localCurrent[2], localTarget[2], dt, speed[2]),
	}
	return YawOnly(local, yaw)
}
