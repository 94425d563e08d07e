package resolver

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/camera/mode"
	"github.com/annel0/camera-rig/internal/replication"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpectatorMatchesAuthority(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStateStore()
	auth := replication.NewAuthority("hero", nil, replication.WithInterval(0), replication.WithStateStore(store))
	r := newResolver(t, nil, WithAuthority(auth))

	observer := replication.NewObserver("hero")
	spectator := NewSpectator(observer, mode.NewMemoryStore(testModes()...), nil)

	for i, flags := range [][]string{nil, nil, {camera.FlagAiming}} {
		now := t0.Add(time.Duration(i) * time.Second)
		authFrame := r.Tick(ctx, time.Second, now, snap(mgl64.Vec3{float64(i), 0, 0}, flags...), camera.Input{})

		payload, err := store.Load(ctx, "hero")
		require.NoError(t, err)
		require.True(t, observer.Receive(payload, now))

		f := spectator.Tick(time.Second, now)
		assertVec(t, authFrame.Transform.Position, f.Transform.Position, "тик %d", i)
		assertVec(t, authFrame.Transform.Rotation.V, f.Transform.Rotation.V)
		assert.Equal(t, authFrame.ModeID, f.ModeID)
		assert.Equal(t, authFrame.Sequence, f.Sequence)
		assert.Zero(t, f.Degraded)
	}
	assert.True(t, spectator.Last().Transitioned, "смена режима смешивается у наблюдателя")
}

func TestSpectatorFreezesWhenStale(t *testing.T) {
	observer := replication.NewObserver("hero", replication.WithStaleness(200*time.Millisecond))
	spectator := NewSpectator(observer, nil, nil)

	f := spectator.Tick(tick, t0)
	assert.True(t, f.Degraded.Has(camera.DegradedStale), "пакетов ещё не было")

	state := replication.State{
		CharacterID: "hero",
		Pivot:       mgl64.Vec3{0, 0, 1},
		Velocity:    mgl64.Vec3{1, 0, 0},
		Yaw:         3.141592653589793,
		Distance:    4,
		ModeID:      "unknown-mode",
		Sequence:    1,
	}
	require.True(t, observer.Receive(replication.Encode(state), t0))

	f = spectator.Tick(tick, t0)
	assert.False(t, f.Degraded.Has(camera.DegradedStale))
	assert.Equal(t, camera.StyleThirdPerson, f.Style, "неизвестный режим заменяется встроенным")
	assertVec(t, mgl64.Vec3{-4, 0, 1}, f.Transform.Position)

	moving := spectator.Tick(100*time.Millisecond, t0.Add(100*time.Millisecond))
	assert.InDelta(t, -3.9, moving.Transform.Position.X(), 1e-6, "экстраполяция по скорости")

	frozen := spectator.Tick(time.Second, t0.Add(time.Second))
	assert.True(t, frozen.Degraded.Has(camera.DegradedStale))
	assert.Equal(t, moving.Transform, frozen.Transform)

	later := spectator.Tick(time.Second, t0.Add(5*time.Second))
	assert.Equal(t, moving.Transform, later.Transform, "кадр не дрейфует")
}

func TestSpectatorSchemaMismatch(t *testing.T) {
	observer := replication.NewObserver("hero")
	registry := NewRegistry()
	spectator := NewSpectator(observer, nil, nil, WithSpectatorSink(registry), WithViewerID("viewer"))

	good := replication.State{CharacterID: "hero", Pivot: mgl64.Vec3{0, 0, 1}, Distance: 4, Sequence: 1}
	require.True(t, observer.Receive(replication.Encode(good), t0))

	future := good
	future.Schema = replication.SchemaVersion + 1
	future.Sequence = 2
	assert.False(t, observer.Receive(replication.Encode(future), t0))

	f := spectator.Tick(tick, t0)
	assert.True(t, f.Degraded.Has(camera.DegradedSchema))
	assertVec(t, mgl64.Vec3{4, 0, 1}, f.Transform.Position, "последнее совместимое состояние")

	got, ok := registry.Get("viewer")
	require.True(t, ok)
	assert.Equal(t, f, got)
}

func TestSpectatorAppliesRotationLag(t *testing.T) {
	ctx := context.Background()
	lagged := followMode()
	lagged.RotationLag = 5
	modes := mode.NewMemoryStore(lagged)

	store := storage.NewMemoryStateStore()
	auth := replication.NewAuthority("hero", nil, replication.WithInterval(0), replication.WithStateStore(store))
	machine, err := mode.NewMachine(modes, lagged.ID)
	require.NoError(t, err)
	r := New("hero", machine, nil, WithAuthority(auth))

	observer := replication.NewObserver("hero")
	spectator := NewSpectator(observer, modes, nil)

	for i, yaw := range []float64{0, math.Pi / 2, math.Pi / 2} {
		now := t0.Add(time.Duration(i) * 100 * time.Millisecond)
		s := snap(mgl64.Vec3{})
		s.ControlYaw = yaw
		authFrame := r.Tick(ctx, 100*time.Millisecond, now, s, camera.Input{})

		payload, err := store.Load(ctx, "hero")
		require.NoError(t, err)
		require.True(t, observer.Receive(payload, now))

		f := spectator.Tick(100*time.Millisecond, now)
		assertVec(t, authFrame.Transform.Rotation.V, f.Transform.Rotation.V, "тик %d", i)
		assert.InDelta(t, authFrame.Transform.Rotation.W, f.Transform.Rotation.W, 1e-6)
	}

	fwd := vec.Forward(spectator.Last().Transform.Rotation)
	assert.Greater(t, fwd.X(), 1e-3, "поворот ещё догоняет направление игрока")
}
