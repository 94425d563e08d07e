package main

import (
	"math"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/camera/targetlock"
	"github.com/annel0/camera-rig/internal/physics"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// Фазы сценария персонажа
const (
	phaseWalk     = "walk"
	phaseAim      = "aim"
	phaseLock     = "lock"
	phaseCrouch   = "crouch"
	phaseCorridor = "corridor"
	phaseTeleport = "teleport"
	phaseShake    = "shake"
	phaseDeath    = "death"
)

// Коридор, в который заходит персонаж: стены по бокам от x=20 до x=40
const (
	corridorStart = 20.0
	corridorEnd   = 40.0
	corridorHalf  = 1.5
)

type phase struct {
	name     string
	duration time.Duration
	step     func(c *scriptedCharacter, dt float64)
}

// scriptedCharacter проигрывает сценарий по кругу и отдаёт снимок персонажа на каждый тик
type scriptedCharacter struct {
	id       string
	phases   []phase
	current  int
	inPhase  time.Duration
	entered  bool
	position mgl64.Vec3
	velocity mgl64.Vec3
	yaw      float64
	pitch    float64
	flags    camera.Flags
	orient   camera.Orientation
	zoom     float64
	targets  []targetlock.Candidate
}

func newScriptedCharacter(id string) *scriptedCharacter {
	c := &scriptedCharacter{
		id:      id,
		flags:   camera.Flags{},
		entered: true,
		targets: []targetlock.Candidate{
			{ID: "dummy-left", Position: mgl64.Vec3{14, 4, 1}},
			{ID: "dummy-right", Position: mgl64.Vec3{14, -4, 1}},
		},
	}
	c.phases = []phase{
		{name: phaseWalk, duration: 3 * time.Second, step: walk(2, 0)},
		{name: phaseAim, duration: 2 * time.Second, step: func(c *scriptedCharacter, dt float64) {
			c.flags = camera.NewFlags(camera.FlagAiming)
			c.orient = camera.OrientationRightShoulder
			c.yaw = vec.NormalizeAngle(c.yaw + 0.3*dt)
			c.move(0.5, dt)
		}},
		{name: phaseLock, duration: 2 * time.Second, step: func(c *scriptedCharacter, dt float64) {
			c.flags = camera.NewFlags(camera.FlagLocked)
			c.orient = camera.OrientationCenter
			c.move(1, dt)
		}},
		{name: phaseCrouch, duration: 2 * time.Second, step: func(c *scriptedCharacter, dt float64) {
			c.flags = camera.NewFlags(camera.FlagCrouching)
			c.yaw = vec.InterpAngleTo(c.yaw, 0, dt, 2)
			c.move(1, dt)
		}},
		{name: phaseCorridor, duration: 4 * time.Second, step: func(c *scriptedCharacter, dt float64) {
			c.flags = camera.Flags{}
			c.move(2, dt)
			// В коридоре игрок поворачивается к стене, штанга упирается в неё
			if c.position.X() > corridorStart {
				c.yaw = vec.InterpAngleTo(c.yaw, math.Pi/2, dt, 1.5)
			}
			c.zoom = 1
		}},
		{name: phaseTeleport, duration: time.Second, step: func(c *scriptedCharacter, dt float64) {
			if c.entered {
				c.position = mgl64.Vec3{100, 0, 0}
				c.yaw = 0
				c.zoom = 0
			}
			c.velocity = mgl64.Vec3{}
		}},
		{name: phaseShake, duration: time.Second, step: walk(1, 0)},
		{name: phaseDeath, duration: 3 * time.Second, step: func(c *scriptedCharacter, dt float64) {
			c.flags = camera.NewFlags(camera.FlagDead)
			c.velocity = mgl64.Vec3{}
			c.pitch = 0
		}},
	}
	return c
}

// walk двигает персонажа вперёд со скоростью speed и рысканием yaw
func walk(speed, yaw float64) func(c *scriptedCharacter, dt float64) {
	return func(c *scriptedCharacter, dt float64) {
		c.flags = camera.Flags{}
		c.orient = camera.OrientationCenter
		c.yaw = vec.InterpAngleTo(c.yaw, yaw, dt, 3)
		c.move(speed, dt)
	}
}

// move смещает персонажа вдоль оси X; рыскание влияет только на взгляд
func (c *scriptedCharacter) move(speed, dt float64) {
	c.velocity = mgl64.Vec3{speed, 0, 0}
	c.position = c.position.Add(c.velocity.Mul(dt))
}

// Step продвигает сценарий и возвращает снимок, текущую фазу и признак входа в неё
func (c *scriptedCharacter) Step(dt time.Duration) (camera.CharacterSnapshot, string, bool) {
	c.inPhase += dt
	if c.inPhase > c.phases[c.current].duration {
		c.inPhase = 0
		c.current = (c.current + 1) % len(c.phases)
		c.entered = true
		if c.current == 0 {
			c.respawn()
		}
	}

	p := c.phases[c.current]
	p.step(c, dt.Seconds())
	entered := c.entered
	c.entered = false

	return c.snapshot(), p.name, entered
}

// respawn возвращает персонажа в начало сценария
func (c *scriptedCharacter) respawn() {
	c.position = mgl64.Vec3{}
	c.velocity = mgl64.Vec3{}
	c.yaw = 0
	c.pitch = 0
	c.zoom = 0
	c.flags = camera.Flags{}
}

func (c *scriptedCharacter) snapshot() camera.CharacterSnapshot {
	forward := vec.Direction(c.yaw, 0)
	up := mgl64.Vec3{0, 0, 1}
	return camera.CharacterSnapshot{
		ID:           c.id,
		Position:     c.position,
		Forward:      forward,
		Right:        forward.Cross(up),
		Up:           up,
		Velocity:     c.velocity,
		ControlYaw:   c.yaw,
		ControlPitch: c.pitch,
		Flags:        c.flags.Clone(),
		Orientation:  c.orient,
	}
}

// Input возвращает ввод зума текущей фазы
func (c *scriptedCharacter) Input() camera.Input {
	return camera.Input{Zoom: c.zoom}
}

// Targets возвращает манекены для захвата цели
func (c *scriptedCharacter) Targets() []targetlock.Candidate {
	return c.targets
}

// buildWorld строит эталонный мир: пол, коридор и колонну у места телепорта
func buildWorld(characterID string) *physics.World {
	world := physics.NewWorld()

	// Капсула персонажа на точке старта; зонд её игнорирует
	world.Add(physics.NewBoxCollider(characterID, mgl64.Vec3{0, 0, 0.9}, mgl64.Vec3{0.3, 0.3, 0.9}, physics.ChannelPawn|physics.ChannelCamera))

	world.Add(physics.NewBoxCollider("floor", mgl64.Vec3{50, 0, -0.5}, mgl64.Vec3{200, 200, 0.5}, physics.ChannelAll))

	center := (corridorStart + corridorEnd) / 2
	half := (corridorEnd - corridorStart) / 2
	world.Add(physics.NewBoxCollider("corridor-left", mgl64.Vec3{center, corridorHalf + 0.2, 1.5}, mgl64.Vec3{half, 0.2, 1.5}, physics.ChannelCamera|physics.ChannelVisibility))
	world.Add(physics.NewBoxCollider("corridor-right", mgl64.Vec3{center, -corridorHalf - 0.2, 1.5}, mgl64.Vec3{half, 0.2, 1.5}, physics.ChannelCamera|physics.ChannelVisibility))

	world.Add(physics.NewBoxCollider("pillar", mgl64.Vec3{96.5, 0, 1.5}, mgl64.Vec3{0.4, 0.4, 1.5}, physics.ChannelCamera))
	return world
}
