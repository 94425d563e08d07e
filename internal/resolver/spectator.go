package resolver

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/camera/blend"
	"github.com/annel0/camera-rig/internal/camera/boom"
	"github.com/annel0/camera-rig/internal/camera/mode"
	"github.com/annel0/camera-rig/internal/logging"
	"github.com/annel0/camera-rig/internal/metrics"
	"github.com/annel0/camera-rig/internal/physics"
	"github.com/annel0/camera-rig/internal/replication"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

// SpectatorOption настраивает Spectator
type SpectatorOption func(*Spectator)

// WithSpectatorSink задаёт получателя кадров
func WithSpectatorSink(s Sink) SpectatorOption {
	return func(sp *Spectator) { sp.sink = s }
}

// WithSpectatorMetrics подключает метрики
func WithSpectatorMetrics(m *metrics.Camera) SpectatorOption {
	return func(sp *Spectator) { sp.metrics = m }
}

// WithCollapseBlend задаёт смешивание при укорочении штанги
func WithCollapseBlend(d time.Duration) SpectatorOption {
	return func(sp *Spectator) { sp.collapseBlend = d }
}

// WithViewerID задаёт идентификатор кадра (по умолчанию наблюдаемый персонаж)
func WithViewerID(id string) SpectatorOption {
	return func(sp *Spectator) { sp.viewerID = id }
}

// Spectator показывает чужую камеру: берёт реплицированные параметры
// и локально прогоняет ту же штангу и смешивание.
type Spectator struct {
	observer      *replication.Observer
	store         mode.Store
	probe         *physics.Probe
	blend         *blend.Engine
	metrics       *metrics.Camera
	sink          Sink
	logger        *logging.Logger
	viewerID         string
	collapseBlend    time.Duration
	teleportDistance float64

	modes     map[string]mode.CameraMode
	dirty     atomic.Bool
	lastMode  string
	lastPivot mgl64.Vec3
	lookRot   mgl64.Quat
	collapsed bool
	degraded  degradedTracker
	last      Frame
}

// NewSpectator создаёт камеру наблюдателя. store задаёт FOV, смешивание и минимум штанги
// по идентификатору режима; неизвестный режим заменяется встроенным.
func NewSpectator(observer *replication.Observer, store mode.Store, probe *physics.Probe, opts ...SpectatorOption) *Spectator {
	sp := &Spectator{
		observer:      observer,
		store:         store,
		probe:         probe,
		blend:         blend.NewEngine(),
		logger:        logging.GetCameraLogger(),
		viewerID:      observer.CharacterID(),
		collapseBlend:    DefaultConfig().CollapseBlend,
		teleportDistance: DefaultConfig().TeleportDistance,
		modes:            make(map[string]mode.CameraMode),
		lookRot:          mgl64.QuatIdent(),
	}
	for _, opt := range opts {
		opt(sp)
	}
	sp.degraded.metrics = sp.metrics
	sp.last = Frame{CharacterID: sp.viewerID, Transform: camera.IdentityTransform(mode.BuiltinFollow().FOV)}
	return sp
}

// Tick строит кадр по последнему реплицированному состоянию.
// Устаревшее состояние замораживает кадр и выставляет DegradedStale.
func (sp *Spectator) Tick(dt time.Duration, now time.Time) Frame {
	view := sp.observer.Snapshot(now)
	var degraded camera.Degraded
	if view.SchemaMismatch {
		degraded |= camera.DegradedSchema
	}
	if view.Stale {
		degraded |= camera.DegradedStale
	}

	s := view.State
	if !view.Ok || (view.Stale && sp.blend.Started()) {
		return sp.emit(sp.freeze(now, degraded))
	}

	m := sp.lookup(s.ModeID)
	offset := vec.Spherical{Yaw: s.Yaw, Pitch: s.Pitch, Distance: s.Distance}

	var prober boom.Prober
	if sp.probe != nil {
		prober = sp.probe
		if sp.probe.Degraded() {
			degraded |= camera.DegradedProbe
		}
	}
	res := boom.NewSolver(m.MinDistance).Solve(s.Pivot, offset, prober)

	// Направление взгляда игрока противоположно смещению камеры
	control := vec.Rotation(vec.NormalizeAngle(s.Yaw-math.Pi-m.Offset.YawOffset), m.Offset.Pitch-s.Pitch)
	look := control
	if s.Distance > 0 && m.Style != camera.StyleFirstPerson {
		look = vec.LookRotation(res.Position, s.Pivot, control)
	}

	// Задержка поворота как у владельца: не на смене режима и не после скачка опоры
	transitioned := sp.lastMode != "" && s.ModeID != sp.lastMode
	jumped := sp.blend.Started() && s.Pivot.Sub(sp.lastPivot).Len() > sp.teleportDistance
	if m.RotationLag > 0 && sp.blend.Started() && !transitioned && !jumped {
		look = mgl64.QuatSlerp(sp.lookRot, look, mgl64.Clamp(dt.Seconds()*m.RotationLag, 0, 1))
	}
	sp.lookRot = look
	sp.lastPivot = s.Pivot

	target := camera.Transform{Position: res.Position, Rotation: look, FOV: m.FOV, Distance: res.Distance}
	switch {
	case !sp.blend.Started():
		sp.blend.Snap(target)
	case transitioned:
		sp.blend.Push(target, m.BlendDuration, m.Curve)
	case res.Collapsed != sp.collapsed && sp.blend.Done():
		sp.blend.Push(target, sp.collapseBlend, blend.EaseOut)
	default:
		sp.blend.Retarget(target)
	}
	out := sp.blend.Advance(dt)
	sp.lastMode = s.ModeID
	sp.collapsed = res.Collapsed

	return sp.emit(Frame{
		CharacterID:  sp.viewerID,
		Transform:    out,
		ModeID:       s.ModeID,
		Style:        m.Style,
		Collapsed:    res.Collapsed,
		Degraded:     degraded,
		Transitioned: transitioned,
		Sequence:     s.Sequence,
		At:           now,
	})
}

func (sp *Spectator) freeze(now time.Time, degraded camera.Degraded) Frame {
	f := sp.last
	f.Degraded = degraded
	f.Transitioned = false
	f.At = now
	if !sp.degraded.current.Has(camera.DegradedStale) && degraded.Has(camera.DegradedStale) {
		sp.logger.Warn("⚠️ Камера %s: состояние устарело, кадр заморожен", sp.viewerID)
	}
	return f
}

func (sp *Spectator) emit(f Frame) Frame {
	sp.degraded.set(f.Degraded)
	sp.last = f
	if sp.sink != nil {
		sp.sink.Present(f)
	}
	return f
}

// lookup возвращает режим по идентификатору с кэшированием
func (sp *Spectator) lookup(id string) mode.CameraMode {
	if sp.dirty.CompareAndSwap(true, false) {
		sp.modes = make(map[string]mode.CameraMode)
	}
	if m, ok := sp.modes[id]; ok {
		return m
	}
	m := mode.BuiltinFollow()
	if sp.store != nil {
		found, err := sp.store.GetCameraMode(id)
		if err == nil {
			m = found
		} else {
			sp.logger.Warn("⚠️ Режим %q наблюдаемой камеры не найден, используется встроенный: %v", id, err)
		}
	}
	if id != "" {
		m.ID = id
	}
	sp.modes[id] = m
	return m
}

// MarkDirty сбрасывает кэш режимов на следующем тике (перезагрузка пресетов).
// Безопасно вызывать из другой горутины.
func (sp *Spectator) MarkDirty() {
	sp.dirty.Store(true)
}

// Last возвращает последний кадр
func (sp *Spectator) Last() Frame {
	return sp.last
}

// Observer возвращает источник реплицированного состояния
func (sp *Spectator) Observer() *replication.Observer {
	return sp.observer
}
