package resolver

import (
	"context"
	"math"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/camera/blend"
	"github.com/annel0/camera-rig/internal/camera/boom"
	"github.com/annel0/camera-rig/internal/camera/mode"
	"github.com/annel0/camera-rig/internal/camera/shake"
	"github.com/annel0/camera-rig/internal/camera/targetlock"
	"github.com/annel0/camera-rig/internal/logging"
	"github.com/annel0/camera-rig/internal/metrics"
	"github.com/annel0/camera-rig/internal/observability"
	"github.com/annel0/camera-rig/internal/physics"
	"github.com/annel0/camera-rig/internal/replication"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config — параметры резолвера, не зависящие от режима
type Config struct {
	ZoomSpeed        float64       // метров в секунду при полном отклонении зума
	CrouchBlend      time.Duration // время опускания опоры в присяде
	CrouchDrop       float64       // опускание опоры, если снимок его не задаёт
	CollapseBlend    time.Duration // смешивание при изменении укорочения штанги без смены режима
	TeleportBlend    time.Duration // 0 — мгновенный переход после телепорта
	TeleportDistance float64       // скачок персонажа дальше этого считается телепортом
	LockRadius       float64       // радиус захвата цели
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		ZoomSpeed:        4,
		CrouchBlend:      500 * time.Millisecond,
		CrouchDrop:       0.4,
		CollapseBlend:    120 * time.Millisecond,
		TeleportDistance: 5,
		LockRadius:       25,
	}
}

// Option настраивает Resolver
type Option func(*Resolver)

// WithConfig задаёт параметры резолвера
func WithConfig(c Config) Option {
	return func(r *Resolver) { r.config = c }
}

// WithShaker подключает модификатор тряски
func WithShaker(s *shake.Shaker) Option {
	return func(r *Resolver) { r.shaker = s }
}

// WithAuthority делает резолвер авторитетным: каждый тик он публикует состояние
func WithAuthority(a *replication.Authority) Option {
	return func(r *Resolver) { r.authority = a }
}

// WithMetrics подключает метрики
func WithMetrics(m *metrics.Camera) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithSink задаёт получателя кадров
func WithSink(s Sink) Option {
	return func(r *Resolver) { r.sink = s }
}

// WithTracer подменяет трассировщик (по умолчанию глобальный)
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// Resolver — камера одного персонажа. Не потокобезопасен: тик выполняется в одном потоке.
type Resolver struct {
	characterID string
	config      Config
	machine     *mode.Machine
	probe       *physics.Probe
	blend       *blend.Engine
	shaker      *shake.Shaker
	authority   *replication.Authority
	selector    targetlock.Selector
	metrics     *metrics.Camera
	sink        Sink
	tracer      trace.Tracer
	logger      *logging.Logger

	zoom        float64 // накопленное отклонение длины штанги от режима
	crouch      float64 // 0..1 доля опускания опоры
	pivot       mgl64.Vec3
	lastCharPos mgl64.Vec3
	lookRot     mgl64.Quat
	hasPivot    bool
	collapsed   bool
	lock        *targetlock.Candidate
	snapshot    camera.CharacterSnapshot
	degraded    degradedTracker
	last        Frame
}

// New создаёт резолвер персонажа. probe может быть nil: тогда штанга не укорачивается.
func New(characterID string, machine *mode.Machine, probe *physics.Probe, opts ...Option) *Resolver {
	r := &Resolver{
		characterID: characterID,
		config:      DefaultConfig(),
		machine:     machine,
		probe:       probe,
		blend:       blend.NewEngine(),
		tracer:      observability.Tracer(),
		logger:      logging.GetCameraLogger(),
		lookRot:     mgl64.QuatIdent(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.selector = targetlock.Selector{SelfID: characterID, Radius: r.config.LockRadius}
	r.degraded.metrics = r.metrics

	if r.probe != nil && r.metrics != nil {
		m := r.metrics
		r.probe.OnFailure(func(error) { m.ProbeFailure() })
	}
	return r
}

// Tick выполняет один шаг камеры и отдаёт кадр получателю.
// Ошибки зонда и сети не прерывают тик: камера продолжает давать правдоподобный кадр.
func (r *Resolver) Tick(ctx context.Context, dt time.Duration, now time.Time, snap camera.CharacterSnapshot, in camera.Input) Frame {
	snap = snap.Copy()
	if snap.ID == "" {
		snap.ID = r.characterID
	}
	r.snapshot = snap

	// 1. Режим
	tr, transitioned := r.machine.Evaluate(snap, now)
	active := r.machine.Active()
	if transitioned {
		r.zoom = 0
		r.metrics.Transition(tr.From.ID, tr.To.ID)
		r.logger.Info("🎥 %s: режим %s → %s", r.characterID, tr.From.ID, tr.To.ID)
	}

	// 2. Желаемое смещение
	if active.Style == camera.StyleTargetLocking && r.lock != nil {
		toTarget := r.lock.Position.Sub(snap.Position)
		if toTarget.LenSqr() > 1e-9 {
			snap.ControlYaw, snap.ControlPitch = vec.YawPitch(toTarget)
		}
	}
	params := active.Params(snap)
	params.Offset.Distance = r.applyZoom(params, in.Zoom, dt)

	// 3. Точка опоры
	teleport := r.hasPivot && snap.Position.Sub(r.lastCharPos).Len() > r.config.TeleportDistance
	target := r.pivotTarget(snap, params, dt)
	switch {
	case !r.hasPivot || teleport:
		r.pivot = target
	default:
		r.pivot = vec.InterpToAxes(r.pivot, target, snap.ControlYaw, dt.Seconds(), params.PivotLag)
	}
	r.hasPivot = true
	r.lastCharPos = snap.Position

	// 4. Штанга
	var prober boom.Prober
	if r.probe != nil {
		prober = r.probe
	}
	res := boom.NewSolver(params.MinDistance).Solve(r.pivot, params.Offset, prober)

	// 5. Поворот взгляда
	control := vec.Rotation(snap.ControlYaw, snap.ControlPitch)
	look := control
	if params.Offset.Distance > 0 && active.Style != camera.StyleFirstPerson {
		look = vec.LookRotation(res.Position, r.pivot, control)
	}
	if params.RotationLag > 0 && r.blend.Started() && !transitioned && !teleport {
		look = mgl64.QuatSlerp(r.lookRot, look, mgl64.Clamp(dt.Seconds()*params.RotationLag, 0, 1))
	}
	r.lookRot = look

	desired := camera.Transform{
		Position: res.Position,
		Rotation: look,
		FOV:      params.FOV,
		Distance: res.Distance,
	}

	// 6-7. Смешивание и модификаторы
	var out camera.Transform
	if active.Style == camera.StyleFixed && r.blend.Started() {
		out = r.last.Transform
	} else {
		r.selectBlend(desired, params, transitioned, teleport, res.Collapsed)
		out = r.shaker.Apply(r.blend.Advance(dt), dt)
	}
	r.collapsed = res.Collapsed
	r.metrics.Collapsed(r.characterID, res.Collapsed)

	var degraded camera.Degraded
	if r.probe != nil && r.probe.Degraded() {
		degraded |= camera.DegradedProbe
	}
	r.degraded.set(degraded)

	// 8. Репликация
	r.publish(ctx, now, snap, params)

	frame := Frame{
		CharacterID:  r.characterID,
		Transform:    out,
		ModeID:       active.ID,
		Style:        active.Style,
		Collapsed:    res.Collapsed,
		Degraded:     degraded,
		Transitioned: transitioned,
		At:           now,
	}
	if r.authority != nil {
		frame.Sequence = r.authority.Sequence()
	}
	r.last = frame
	if r.sink != nil {
		r.sink.Present(frame)
	}
	return frame
}

// applyZoom накапливает ввод зума и ограничивает длину штанги диапазоном режима
func (r *Resolver) applyZoom(params mode.Params, zoom float64, dt time.Duration) float64 {
	base := params.Offset.Distance
	if base <= 0 {
		r.zoom = 0
		return 0
	}

	// MaxDistance <= 0 означает, что диапазон не задан: длина штанги из смещения режима
	lo := params.MinDistance
	hi := params.MaxDistance
	if hi <= 0 || hi < lo {
		hi = math.Max(lo, base)
	}
	r.zoom += zoom * r.config.ZoomSpeed * dt.Seconds()
	desired := mgl64.Clamp(base+r.zoom, lo, hi)
	r.zoom = desired - base
	return desired
}

// pivotTarget возвращает точку опоры без задержки: позиция персонажа, плечо и присед
func (r *Resolver) pivotTarget(snap camera.CharacterSnapshot, params mode.Params, dt time.Duration) mgl64.Vec3 {
	goal := 0.0
	if snap.Flags.Has(camera.FlagCrouching) {
		goal = 1
	}
	r.crouch = approach(r.crouch, goal, dt, r.config.CrouchBlend)

	drop := snap.CrouchDrop
	if drop == 0 {
		drop = r.config.CrouchDrop
	}
	up := snap.Up
	if up.LenSqr() < 1e-12 {
		up = vec.AxisZ
	}
	return snap.Position.Add(params.Socket).Sub(up.Mul(drop * r.crouch))
}

// selectBlend выбирает способ перехода к новому положению камеры
func (r *Resolver) selectBlend(target camera.Transform, params mode.Params, transitioned, teleport, collapsed bool) {
	switch {
	case !r.blend.Started():
		r.blend.Snap(target)
	case teleport:
		if r.config.TeleportBlend <= 0 {
			r.blend.Snap(target)
		} else {
			r.blend.Push(target, r.config.TeleportBlend, blend.EaseOut)
		}
	case transitioned:
		r.blend.Push(target, params.BlendDuration, params.Curve)
	case collapsed != r.collapsed && r.blend.Done():
		r.blend.Push(target, r.config.CollapseBlend, blend.EaseOut)
	default:
		r.blend.Retarget(target)
	}
}

// publish отправляет авторитетное состояние, если наступил срок
func (r *Resolver) publish(ctx context.Context, now time.Time, snap camera.CharacterSnapshot, params mode.Params) {
	if r.authority == nil || !r.authority.Due(now) {
		return
	}

	ctx, span := r.tracer.Start(ctx, "camera.replicate",
		trace.WithAttributes(
			attribute.String("camera.character", r.characterID),
			attribute.String("camera.mode", params.ModeID),
		))
	defer span.End()

	_, err := r.authority.Publish(ctx, now, replication.State{
		Pivot:    r.pivot,
		Velocity: snap.Velocity,
		Yaw:      params.Offset.Yaw,
		Pitch:    params.Offset.Pitch,
		Distance: params.Offset.Distance,
		ModeID:   params.ModeID,
	})
	span.SetAttributes(attribute.Int64("camera.sequence", int64(r.authority.Sequence())))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("⚠️ %s: не удалось отправить состояние камеры: %v", r.characterID, err)
	}
}

// Request переключает стиль камеры по команде игрока
func (r *Resolver) Request(modeID string, now time.Time) bool {
	return r.machine.Request(modeID, now)
}

// AddTrauma встряхивает камеру
func (r *Resolver) AddTrauma(amount float64) {
	if r.shaker != nil {
		r.shaker.AddTrauma(amount)
	}
}

// CycleTarget захватывает следующую цель справа или слева от текущей.
// Без подходящих целей захват снимается.
func (r *Resolver) CycleTarget(candidates []targetlock.Candidate, dir targetlock.Direction) (targetlock.Candidate, bool) {
	current := ""
	if r.lock != nil {
		current = r.lock.ID
	}
	c, ok := r.selector.Next(r.snapshot.Position, r.snapshot.ControlYaw, candidates, current, dir)
	if !ok {
		r.ClearLock()
		return targetlock.Candidate{}, false
	}
	if c.ID != current {
		r.logger.Debug("🎯 %s: цель %s", r.characterID, c.ID)
	}
	r.lock = &c
	return c, true
}

// LockTarget захватывает конкретную цель
func (r *Resolver) LockTarget(c targetlock.Candidate) {
	r.lock = &c
}

// TrackTargets обновляет позицию захваченной цели.
// Исчезнувшая или ушедшая из радиуса цель снимается; возвращает, удерживается ли захват.
func (r *Resolver) TrackTargets(candidates []targetlock.Candidate) bool {
	if r.lock == nil {
		return false
	}
	for _, c := range candidates {
		if c.ID != r.lock.ID {
			continue
		}
		if !r.selector.InRange(r.snapshot.Position, c.Position) {
			break
		}
		r.lock.Position = c.Position
		return true
	}
	r.ClearLock()
	return false
}

// ClearLock снимает захват цели
func (r *Resolver) ClearLock() {
	if r.lock != nil {
		r.logger.Debug("🎯 %s: захват снят", r.characterID)
	}
	r.lock = nil
}

// Target возвращает захваченную цель
func (r *Resolver) Target() (targetlock.Candidate, bool) {
	if r.lock == nil {
		return targetlock.Candidate{}, false
	}
	return *r.lock, true
}

// Machine возвращает автомат режимов (горячая перезагрузка пресетов)
func (r *Resolver) Machine() *mode.Machine {
	return r.machine
}

// Last возвращает последний кадр
func (r *Resolver) Last() Frame {
	return r.last
}

// CharacterID возвращает персонажа камеры
func (r *Resolver) CharacterID() string {
	return r.characterID
}

// Forget убирает следы камеры: сохранённое состояние и метрики персонажа
func (r *Resolver) Forget(ctx context.Context) error {
	r.metrics.Forget(r.characterID)
	if r.authority == nil {
		return nil
	}
	return r.authority.Forget(ctx)
}

// approach линейно ведёт current к target за duration
func approach(current, target float64, dt, duration time.Duration) float64 {
	if duration <= 0 {
		return target
	}
	step := dt.Seconds() / duration.Seconds()
	if current < target {
		return math.Min(target, current+step)
	}
	return math.Max(target, current-step)
}

// degradedTracker переводит смену флагов деградации в метрики
type degradedTracker struct {
	current camera.Degraded
	metrics *metrics.Camera
}

var degradedKinds = []struct {
	flag camera.Degraded
	name string
}{
	{camera.DegradedProbe, "probe"},
	{camera.DegradedStale, "stale"},
	{camera.DegradedSchema, "schema"},
}

func (d *degradedTracker) set(next camera.Degraded) {
	for _, kind := range degradedKinds {
		was, is := d.current.Has(kind.flag), next.Has(kind.flag)
		if was != is {
			d.metrics.DegradedChanged(kind.name, is)
		}
	}
	d.current = next
}
