// Package blend сглаживает разрывы положения камеры (смена режима, телепорт, схлопывание штанги).
package blend

import (
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// State — состояние текущего смешивания. Elapsed никогда не превышает Duration.
type State struct {
	From     camera.Transform
	To       camera.Transform
	Current  camera.Transform
	Elapsed  time.Duration
	Duration time.Duration
	Curve    Curve
}

// Engine владеет состоянием смешивания одной камеры.
// Не потокобезопасен, продвигается раз в тик.
type Engine struct {
	state   State
	started bool
}

// NewEngine создаёт движок смешивания без цели
func NewEngine() *Engine {
	return &Engine{state: State{Current: camera.IdentityTransform(0)}}
}

// Push начинает новое смешивание от текущего интерполированного значения.
// Первый вызов применяет цель сразу: смешивать не из чего.
func (e *Engine) Push(target camera.Transform, duration time.Duration, curve Curve) {
	if !e.started {
		e.Snap(target)
		return
	}
	if duration < 0 {
		duration = 0
	}
	e.state = State{
		From:     e.state.Current,
		To:       target,
		Current:  e.state.Current,
		Duration: duration,
		Curve:    curve,
	}
}

// Retarget сдвигает конечную точку без сброса прогресса (цель движется вместе с персонажем)
func (e *Engine) Retarget(target camera.Transform) {
	if !e.started {
		e.Snap(target)
		return
	}
	e.state.To = target
}

// Snap мгновенно переносит камеру в цель (телепорт)
func (e *Engine) Snap(target camera.Transform) {
	e.state = State{From: target, To: target, Current: target}
	e.started = true
}

// Advance продвигает время смешивания и возвращает текущий трансформ
func (e *Engine) Advance(dt time.Duration) camera.Transform {
	if !e.started {
		return e.state.Current
	}
	if dt > 0 {
		e.state.Elapsed += dt
	}
	if e.state.Elapsed >= e.state.Duration {
		e.state.Elapsed = e.state.Duration
		e.state.Current = e.state.To
		return e.state.Current
	}

	t := e.Progress()
	e.state.Current = interpolate(e.state.From, e.state.To, e.state.Curve.Apply(t), t)
	return e.state.Current
}

// Progress возвращает нормализованный прогресс [0,1]
func (e *Engine) Progress() float64 {
	if e.state.Duration <= 0 {
		return 1
	}
	return float64(e.state.Elapsed) / float64(e.state.Duration)
}

// Done сообщает о завершении смешивания
func (e *Engine) Done() bool {
	return e.state.Elapsed >= e.state.Duration
}

// Started сообщает, получал ли движок цель
func (e *Engine) Started() bool {
	return e.started
}

// State возвращает копию состояния
func (e *Engine) State() State {
	return e.state
}

// interpolate смешивает каналы: позиция и длина по кривой k,
// поворот сферически по той же кривой, FOV линейно по t
func interpolate(from, to camera.Transform, k, t float64) camera.Transform {
	return camera.Transform{
		Position: vec.Lerp(from.Position, to.Position, k),
		Rotation: mgl64.QuatSlerp(from.Rotation, to.Rotation, k),
		FOV:      from.FOV + (to.FOV-from.FOV)*t,
		Distance: from.Distance + (to.Distance-from.Distance)*k,
	}
}
