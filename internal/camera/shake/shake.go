// Package shake реализует модификатор тряски камеры на шуме Перлина.
package shake

import (
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl64"
)

// Параметры генератора шума
const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinN     = 3
)

// Config задаёт амплитуду и затухание тряски
type Config struct {
	MaxYaw    float64 // радианы при trauma = 1
	MaxPitch  float64
	MaxRoll   float64
	Frequency float64 // частота шума, Гц
	Decay     float64 // убывание trauma в секунду
}

// DefaultConfig возвращает умеренную тряску
func DefaultConfig() Config {
	return Config{
		MaxYaw:    mgl64.DegToRad(4),
		MaxPitch:  mgl64.DegToRad(4),
		MaxRoll:   mgl64.DegToRad(6),
		Frequency: 12,
		Decay:     1.2,
	}
}

// Shaker накапливает «травму» (0..1) и дрожит пропорционально её квадрату
type Shaker struct {
	config Config
	yaw    *perlin.Perlin
	pitch  *perlin.Perlin
	roll   *perlin.Perlin
	trauma float64
	clock  float64
}

// NewShaker создаёт модификатор. Разные seed дают разный рисунок тряски.
func NewShaker(config Config, seed int64) *Shaker {
	return &Shaker{
		config: config,
		yaw:    perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed),
		pitch:  perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed+1),
		roll:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed+2),
	}
}

// AddTrauma добавляет травму (удар, взрыв). Значение ограничено [0,1].
func (s *Shaker) AddTrauma(amount float64) {
	s.trauma = mgl64.Clamp(s.trauma+amount, 0, 1)
}

// Trauma возвращает текущую травму
func (s *Shaker) Trauma() float64 {
	return s.trauma
}

// Apply смещает поворот трансформа и гасит травму. Без травмы трансформ не меняется.
func (s *Shaker) Apply(t camera.Transform, dt time.Duration) camera.Transform {
	if s == nil {
		return t
	}
	seconds := dt.Seconds()
	s.clock += seconds
	if s.trauma <= 0 {
		return t
	}

	amount := s.trauma * s.trauma
	x := s.clock * s.config.Frequency
	yaw := s.config.MaxYaw * amount * clampNoise(s.yaw.Noise1D(x))
	pitch := s.config.MaxPitch * amount * clampNoise(s.pitch.Noise1D(x))
	roll := s.config.MaxRoll * amount * clampNoise(s.roll.Noise1D(x))

	jitter := mgl64.QuatRotate(yaw, vec.AxisZ).
		Mul(mgl64.QuatRotate(pitch, vec.AxisY)).
		Mul(mgl64.QuatRotate(roll, vec.AxisX))
	t.Rotation = t.Rotation.Mul(jitter).Normalize()

	s.trauma = mgl64.Clamp(s.trauma-s.config.Decay*seconds, 0, 1)
	return t
}

// clampNoise ограничивает шум [-1,1]: амплитуда Перлина зависит от alpha/beta
func clampNoise(v float64) float64 {
	return mgl64.Clamp(v, -1, 1)
}
