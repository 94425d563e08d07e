package physics

import (
	"errors"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Channel — битовая маска каналов коллизий (камера, видимость, пули...)
type Channel uint32

const (
	ChannelCamera Channel = 1 << iota
	ChannelVisibility
	ChannelPawn

	ChannelAll Channel = math.MaxUint32
)

var (
	// ErrQueryUnavailable — сервис коллизий недоступен; зонд работает в режиме fail-open
	ErrQueryUnavailable = errors.New("collision query unavailable")
	// ErrQueryPending — асинхронный запрос ещё не готов; используется результат прошлого тика
	ErrQueryPending = errors.New("collision query pending")
)

// IgnoreSet — набор владельцев коллайдеров, которые запрос должен пропускать
type IgnoreSet map[string]struct{}

// NewIgnoreSet создаёт набор из идентификаторов
func NewIgnoreSet(ids ...string) IgnoreSet {
	s := make(IgnoreSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains проверяет, нужно ли пропустить владельца
func (s IgnoreSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Query описывает бросок сферы вдоль направления
type Query struct {
	Origin      mgl64.Vec3
	Direction   mgl64.Vec3 // единичный вектор
	MaxDistance float64
	Radius      float64
	Channel     Channel
	Ignore      IgnoreSet
}

// CollisionService — примитив броска формы, предоставляемый физическим движком.
// hit=false означает, что путь свободен на всю длину.
type CollisionService interface {
	Cast(q Query) (distance float64, hit bool, err error)
}

// BoxCollider представляет выровненный по осям параллелепипед в мире
type BoxCollider struct {
	Owner    string     // владелец (персонаж, уровень, дверь...)
	Min      mgl64.Vec3 // минимальный угол
	Max      mgl64.Vec3 // максимальный угол
	Channels Channel    // каналы, которые коллайдер блокирует
}

// NewBoxCollider создаёт коллайдер по центру и половинам размеров
func NewBoxCollider(owner string, center, halfExtents mgl64.Vec3, channels Channel) BoxCollider {
	return BoxCollider{
		Owner:    owner,
		Min:      center.Sub(halfExtents),
		Max:      center.Add(halfExtents),
		Channels: channels,
	}
}

// IsPointInside проверяет, находится ли точка внутри коллайдера
func (bc BoxCollider) IsPointInside(point mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if point[i] < bc.Min[i] || point[i] > bc.Max[i] {
			return false
		}
	}
	return true
}

// Inflate расширяет коллайдер на радиус (сумма Минковского без скругления углов)
func (bc BoxCollider) Inflate(r float64) BoxCollider {
	pad := mgl64.Vec3{r, r, r}
	bc.Min = bc.Min.Sub(pad)
	bc.Max = bc.Max.Add(pad)
	return bc
}

// RayIntersect возвращает расстояние входа луча в коллайдер (slab-тест).
// Если начало луча внутри коллайдера, возвращается 0.
func (bc BoxCollider) RayIntersect(origin, dir mgl64.Vec3) (float64, bool) {
	tMin := math.Inf(-1)
	tMax := math.Inf(1)

	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < 1e-12 {
			// Луч параллелен плоскостям — либо внутри слоя, либо промах
			if origin[i] < bc.Min[i] || origin[i] > bc.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1.0 / dir[i]
		t1 := (bc.Min[i] - origin[i]) * inv
		t2 := (bc.Max[i] - origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMax < tMin {
			return 0, false
		}
	}

	if tMax < 0 {
		return 0, false
	}
	if tMin <= 0 {
		return 0, true
	}
	return tMin, true
}

// World — эталонный сервис коллизий из набора параллелепипедов.
// Используется тестами и симулятором; настоящий движок подключается через CollisionService.
type World struct {
	mu        sync.RWMutex
	colliders []BoxCollider
}

// NewWorld создаёт пустой мир
func NewWorld() *World {
	return &World{}
}

// Add добавляет коллайдер
func (w *World) Add(c BoxCollider) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.colliders = append(w.colliders, c)
}

// Remove удаляет все коллайдеры владельца и возвращает их количество
func (w *World) Remove(owner string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.colliders[:0]
	removed := 0
	for _, c := range w.colliders {
		if c.Owner == owner {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	w.colliders = kept
	return removed
}

// Len возвращает количество коллайдеров
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.colliders)
}

// Cast реализует CollisionService: бросок сферы радиуса q.Radius
func (w *World) Cast(q Query) (float64, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	best := q.MaxDistance
	hit := false

	for _, c := range w.colliders {
		if c.Channels&q.Channel == 0 || q.Ignore.Contains(c.Owner) {
			continue
		}
		d, ok := c.Inflate(q.Radius).RayIntersect(q.Origin, q.Direction)
		if !ok || d > best {
			continue
		}
		best = d
		hit = true
	}

	return best, hit, nil
}
