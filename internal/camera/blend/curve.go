package blend

import (
	"fmt"
	"strings"
)

// Curve — функция сглаживания нормализованного прогресса t ∈ [0,1]
type Curve uint8

const (
	Linear Curve = iota
	EaseIn
	EaseOut
	EaseInOut
	SmoothStep
)

var curveNames = []string{"linear", "ease_in", "ease_out", "ease_in_out", "smoothstep"}

// String возвращает идентификатор кривой
func (c Curve) String() string {
	if int(c) < len(curveNames) {
		return curveNames[c]
	}
	return fmt.Sprintf("curve(%d)", c)
}

// ParseCurve разбирает идентификатор кривой из пресета
func ParseCurve(name string) (Curve, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Linear, nil
	}
	for i, n := range curveNames {
		if n == key {
			return Curve(i), nil
		}
	}
	return Linear, fmt.Errorf("неизвестная кривая смешивания %q", name)
}

// Apply применяет кривую. Значения вне [0,1] обрезаются.
func (c Curve) Apply(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}

	switch c {
	case EaseIn:
		return t * t
	case EaseOut:
		u := 1 - t
		return 1 - u*u
	case EaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		u := -2*t + 2
		return 1 - u*u/2
	case SmoothStep:
		return t * t * (3 - 2*t)
	default:
		return t
	}
}
