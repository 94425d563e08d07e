// Package targetlock выбирает и переключает цель захвата камеры.
package targetlock

import (
	"math"
	"sort"

	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// Direction — направление переключения цели
type Direction uint8

const (
	Right Direction = iota
	Left
)

// Candidate — персонаж, который может стать целью
type Candidate struct {
	ID       string
	Position mgl64.Vec3
}

// ranked — кандидат с углом от направления взгляда (положительный — слева)
type ranked struct {
	Candidate
	angle    float64
	distance float64
}

// Selector выбирает цели в радиусе вокруг персонажа
type Selector struct {
	SelfID string
	Radius float64
}

// Next возвращает новую цель. Без текущей цели берётся ближайшая к направлению взгляда,
// иначе — соседняя справа или слева с переходом через край списка.
// false означает, что целей в радиусе нет.
func (s Selector) Next(origin mgl64.Vec3, facingYaw float64, candidates []Candidate, current string, dir Direction) (Candidate, bool) {
	list := s.rank(origin, facingYaw, candidates)
	if len(list) == 0 {
		return Candidate{}, false
	}

	idx := -1
	if current != "" {
		for i, c := range list {
			if c.ID == current {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return list[closestToFacing(list)].Candidate, true
	}

	switch dir {
	case Right:
		idx = (idx + 1) % len(list)
	default:
		idx = (idx - 1 + len(list)) % len(list)
	}
	return list[idx].Candidate, true
}

// InRange сообщает, остаётся ли цель в радиусе захвата
func (s Selector) InRange(origin, target mgl64.Vec3) bool {
	return s.Radius <= 0 || target.Sub(origin).Len() <= s.Radius
}

// rank отбирает кандидатов в радиусе и сортирует слева направо
func (s Selector) rank(origin mgl64.Vec3, facingYaw float64, candidates []Candidate) []ranked {
	list := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == s.SelfID {
			continue
		}
		delta := c.Position.Sub(origin)
		dist := delta.Len()
		if dist < 1e-9 || !s.InRange(origin, c.Position) {
			continue
		}
		yaw, _ := vec.YawPitch(delta)
		list = append(list, ranked{
			Candidate: c,
			angle:     vec.DeltaAngle(facingYaw, yaw),
			distance:  dist,
		})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].angle != list[j].angle {
			return list[i].angle > list[j].angle
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func closestToFacing(list []ranked) int {
	best := 0
	bestAngle := math.Inf(1)
	for i, c := range list {
		a := math.Abs(c.angle)
		if a < bestAngle || (a == bestAngle && c.distance < list[best].distance) {
			best = i
			bestAngle = a
		}
	}
	return best
}
