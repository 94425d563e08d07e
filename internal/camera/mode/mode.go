// Package mode содержит набор режимов камеры и конечный автомат переключения между ними.
package mode

import (
	"math"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/camera/blend"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// Offset — смещение камеры относительно опоры. Yaw отсчитывается от направления
// за спиной персонажа, Pitch добавляется к возвышению, Distance — длина штанги.
type Offset struct {
	YawOffset float64 // радианы
	Pitch     float64 // радианы
	Distance  float64
}

// Condition — предикат над флагами персонажа
type Condition struct {
	All  []string `yaml:"all"`  // должны быть установлены все
	Any  []string `yaml:"any"`  // хотя бы один, если список не пуст
	None []string `yaml:"none"` // ни один не должен быть установлен
}

// Empty сообщает, что условие не задано
func (c Condition) Empty() bool {
	return len(c.All) == 0 && len(c.Any) == 0 && len(c.None) == 0
}

// Holds проверяет условие. Пустое условие никогда не выполняется.
func (c Condition) Holds(flags camera.Flags) bool {
	if c.Empty() {
		return false
	}
	for _, f := range c.All {
		if !flags.Has(f) {
			return false
		}
	}
	for _, f := range c.None {
		if flags.Has(f) {
			return false
		}
	}
	if len(c.Any) == 0 {
		return true
	}
	for _, f := range c.Any {
		if flags.Has(f) {
			return true
		}
	}
	return false
}

// CameraMode — неизменяемое описание режима камеры
type CameraMode struct {
	ID            string
	Style         camera.Style
	Priority      int
	Offset        Offset
	MinDistance   float64
	MaxDistance   float64
	SocketOffsets map[camera.Orientation]mgl64.Vec3 // (вперёд, вправо, вверх) в осях персонажа
	FOV           float64                           // градусы
	BlendDuration time.Duration
	Curve         blend.Curve
	PivotLag      mgl64.Vec3 // скорость задержки опоры по осям (вперёд, вбок, вверх); 0 — без задержки
	RotationLag   float64    // скорость задержки поворота; 0 — без задержки
	Enter         Condition
	Exit          Condition
}

// Params — параметры режима, разрешённые для конкретного снимка персонажа
type Params struct {
	ModeID        string
	Style         camera.Style
	Offset        vec.Spherical // мировое направление от опоры к камере
	Socket        mgl64.Vec3    // смещение опоры в мировых осях
	MinDistance   float64
	MaxDistance   float64
	FOV           float64
	BlendDuration time.Duration
	Curve         blend.Curve
	PivotLag      mgl64.Vec3
	RotationLag   float64
}

// Socket возвращает смещение опоры для ориентации; по умолчанию — центральное
func (m CameraMode) Socket(o camera.Orientation) mgl64.Vec3 {
	if s, ok := m.SocketOffsets[o]; ok {
		return s
	}
	return m.SocketOffsets[camera.OrientationCenter]
}

// Stays сообщает, остаётся ли режим активным по своим условиям.
// Режим без условий удерживается только как базовый.
func (m CameraMode) Stays(flags camera.Flags) bool {
	if !m.Exit.Empty() {
		return !m.Exit.Holds(flags)
	}
	if !m.Enter.Empty() {
		return m.Enter.Holds(flags)
	}
	return false
}

// Params разрешает смещение режима относительно направления взгляда игрока.
// Камера висит за спиной: рыскание развёрнуто на π, взгляд вниз поднимает камеру.
func (m CameraMode) Params(s camera.CharacterSnapshot) Params {
	socket := m.Socket(s.Orientation)
	world := s.Forward.Mul(socket[0]).Add(s.Right.Mul(socket[1])).Add(s.Up.Mul(socket[2]))

	offset := vec.Spherical{
		Yaw:      vec.NormalizeAngle(s.ControlYaw + math.Pi + m.Offset.YawOffset),
		Pitch:    mgl64.Clamp(m.Offset.Pitch-s.ControlPitch, -math.Pi/2+0.01, math.Pi/2-0.01),
		Distance: m.Offset.Distance,
	}

	return Params{
		ModeID:        m.ID,
		Style:         m.Style,
		Offset:        offset,
		Socket:        world,
		MinDistance:   m.MinDistance,
		MaxDistance:   m.MaxDistance,
		FOV:           m.FOV,
		BlendDuration: m.BlendDuration,
		Curve:         m.Curve,
		PivotLag:      m.PivotLag,
		RotationLag:   m.RotationLag,
	}
}

// BuiltinFollowID — идентификатор встроенного режима
const BuiltinFollowID = "follow"

// BuiltinFollow возвращает встроенный режим следования из-за плеча.
// Используется, когда хранилище не знает идентификатор.
func BuiltinFollow() CameraMode {
	return CameraMode{
		ID:          BuiltinFollowID,
		Style:       camera.StyleThirdPerson,
		Offset:      Offset{Pitch: mgl64.DegToRad(10), Distance: 3.4},
		MinDistance: 0.3,
		MaxDistance: 6,
		SocketOffsets: map[camera.Orientation]mgl64.Vec3{
			camera.OrientationCenter:        {0, 0, 1.0},
			camera.OrientationLeftShoulder:  {0, -0.64, 1.0},
			camera.OrientationRightShoulder: {0, 0.64, 1.0},
		},
		FOV:           90,
		BlendDuration: 350 * time.Millisecond,
		Curve:         blend.EaseOut,
		PivotLag:      mgl64.Vec3{12, 12, 8},
	}
}
