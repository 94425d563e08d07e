package camera

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Style определяет поведение камеры. Набор совпадает со стилями исходного плагина
// плюс кинематографический режим и режим смерти.
type Style uint8

const (
	StyleNone Style = iota
	StyleFixed
	StyleSpectator
	StyleFirstPerson
	StyleThirdPerson
	StyleTargetLocking
	StyleAiming
	StyleCinematic
	StyleDeath
)

var styleNames = map[Style]string{
	StyleNone:          "none",
	StyleFixed:         "fixed",
	StyleSpectator:     "spectator",
	StyleFirstPerson:   "first_person",
	StyleThirdPerson:   "third_person",
	StyleTargetLocking: "target_locking",
	StyleAiming:        "aiming",
	StyleCinematic:     "cinematic",
	StyleDeath:         "death",
}

// String возвращает строковое представление стиля
func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return fmt.Sprintf("style(%d)", s)
}

// ParseStyle разбирает стиль из конфигурации
func ParseStyle(name string) (Style, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for style, n := range styleNames {
		if n == key {
			return style, nil
		}
	}
	return StyleNone, fmt.Errorf("неизвестный стиль камеры %q", name)
}

// Orientation задаёт, над каким плечом персонажа висит камера
type Orientation uint8

const (
	OrientationCenter Orientation = iota
	OrientationLeftShoulder
	OrientationRightShoulder
)

// String возвращает строковое представление ориентации
func (o Orientation) String() string {
	switch o {
	case OrientationLeftShoulder:
		return "left"
	case OrientationRightShoulder:
		return "right"
	default:
		return "center"
	}
}

// Flags — набор именованных флагов персонажа ("is-aiming", "is-crouching", ...)
type Flags map[string]bool

// NewFlags создаёт набор из перечисленных флагов
func NewFlags(names ...string) Flags {
	f := make(Flags, len(names))
	for _, n := range names {
		f[n] = true
	}
	return f
}

// Has проверяет, установлен ли флаг
func (f Flags) Has(name string) bool {
	return f[name]
}

// With возвращает копию набора с дополнительным флагом
func (f Flags) With(name string) Flags {
	out := f.Clone()
	out[name] = true
	return out
}

// Without возвращает копию набора без флага
func (f Flags) Without(name string) Flags {
	out := f.Clone()
	delete(out, name)
	return out
}

// Clone копирует набор; снимок персонажа передаётся по значению
func (f Flags) Clone() Flags {
	out := make(Flags, len(f))
	for k, v := range f {
		if v {
			out[k] = true
		}
	}
	return out
}

// Names возвращает отсортированный список установленных флагов
func (f Flags) Names() []string {
	names := make([]string, 0, len(f))
	for k, v := range f {
		if v {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Стандартные флаги персонажа
const (
	FlagAiming    = "is-aiming"
	FlagCrouching = "is-crouching"
	FlagDead      = "is-dead"
	FlagLocked    = "is-target-locking"
	FlagCinematic = "in-cinematic"
)

// CharacterSnapshot — состояние персонажа на текущий тик.
// Принадлежит внешней системе персонажей и копируется в резолвер по значению.
type CharacterSnapshot struct {
	ID           string
	Position     mgl64.Vec3
	Forward      mgl64.Vec3
	Right        mgl64.Vec3
	Up           mgl64.Vec3
	Velocity     mgl64.Vec3
	ControlYaw   float64 // направление, куда игрок смотрит камерой
	ControlPitch float64
	Flags        Flags
	Orientation  Orientation
	CrouchDrop   float64 // насколько опускается точка опоры в присяде
}

// Copy возвращает независимую копию снимка
func (s CharacterSnapshot) Copy() CharacterSnapshot {
	s.Flags = s.Flags.Clone()
	return s
}

// Input — нормализованный ввод игрока за тик
type Input struct {
	Look mgl64.Vec2 // смещение взгляда (-1..1), уже учтено в ControlYaw/Pitch внешней системой
	Zoom float64    // -1 приблизить, +1 отдалить
}

// Transform — итоговое положение камеры, передаваемое слою отображения
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	FOV      float64
	Distance float64 // длина штанги до камеры
}

// IdentityTransform возвращает трансформ в начале координат без поворота
func IdentityTransform(fov float64) Transform {
	return Transform{Rotation: mgl64.QuatIdent(), FOV: fov}
}

// Degraded — флаги деградации, которые слой отображения может показать игроку
type Degraded uint8

const (
	DegradedProbe  Degraded = 1 << iota // запросы коллизий недоступны
	DegradedStale                       // реплицированное состояние устарело
	DegradedSchema                      // несовместимая схема сетевого состояния
)

// Has проверяет наличие флага
func (d Degraded) Has(flag Degraded) bool {
	return d&flag != 0
}

// Strings возвращает имена установленных флагов
func (d Degraded) Strings() []string {
	out := make([]string, 0, 3)
	if d.Has(DegradedProbe) {
		out = append(out, "probe")
	}
	if d.Has(DegradedStale) {
		out = append(out, "stale")
	}
	if d.Has(DegradedSchema) {
		out = append(out, "schema")
	}
	return out
}
