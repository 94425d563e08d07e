package mode

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/camera/blend"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionHolds(t *testing.T) {
	flags := camera.NewFlags(camera.FlagAiming, camera.FlagCrouching)

	assert.False(t, Condition{}.Holds(flags), "пустое условие не срабатывает")
	assert.True(t, Condition{All: []string{camera.FlagAiming}}.Holds(flags))
	assert.False(t, Condition{All: []string{camera.FlagAiming, camera.FlagDead}}.Holds(flags))
	assert.True(t, Condition{Any: []string{camera.FlagDead, camera.FlagCrouching}}.Holds(flags))
	assert.False(t, Condition{Any: []string{camera.FlagDead}}.Holds(flags))
	assert.False(t, Condition{None: []string{camera.FlagAiming}}.Holds(flags))
	assert.True(t, Condition{None: []string{camera.FlagDead}}.Holds(flags))
}

func TestParamsPlacesCameraBehind(t *testing.T) {
	m := BuiltinFollow()
	m.Offset.Pitch = 0
	s := camera.CharacterSnapshot{
		Forward:     mgl64.Vec3{1, 0, 0},
		Right:       mgl64.Vec3{0, -1, 0},
		Up:          mgl64.Vec3{0, 0, 1},
		Orientation: camera.OrientationRightShoulder,
	}

	p := m.Params(s)
	dir := p.Offset.Direction()
	assert.True(t, dir.ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-9), "камера за спиной")
	assert.True(t, p.Socket.ApproxEqualThreshold(mgl64.Vec3{0, -0.64, 1.0}, 1e-9), "правое плечо")

	// Взгляд вниз поднимает камеру
	s.ControlPitch = -0.3
	assert.InDelta(t, 0.3, m.Params(s).Offset.Pitch, 1e-12)

	s.ControlYaw = math.Pi / 2
	assert.InDelta(t, -math.Pi/2, m.Params(s).Offset.Yaw, 1e-12)
}

const presetsYAML = `
default: follow
modes:
  - id: follow
    style: third_person
    offset: {pitch: 10, distance: 3.4}
    min_distance: 0.3
    max_distance: 6
    sockets:
      center: [0, 0, 1]
      left: [0, -0.64, 1]
      right: [0, 0.64, 1]
    fov: 90
    blend: 350ms
    curve: ease_out
    pivot_lag: [12, 12, 8]
  - id: aim
    style: aiming
    priority: 10
    offset: {yaw: 5, distance: 1.5}
    fov: 70
    blend: 200ms
    curve: ease_in_out
    enter: {all: [is-aiming]}
    exit: {none: [is-aiming]}
`

func TestParsePresets(t *testing.T) {
	modes, order, def, err := ParsePresets([]byte(presetsYAML))
	require.NoError(t, err)
	assert.Equal(t, "follow", def)
	assert.Equal(t, []string{"follow", "aim"}, order)

	follow := modes["follow"]
	assert.Equal(t, camera.StyleThirdPerson, follow.Style)
	assert.InDelta(t, mgl64.DegToRad(10), follow.Offset.Pitch, 1e-12)
	assert.Equal(t, 350*time.Millisecond, follow.BlendDuration)
	assert.Equal(t, blend.EaseOut, follow.Curve)
	assert.Equal(t, mgl64.Vec3{0, -0.64, 1}, follow.Socket(camera.OrientationLeftShoulder))
	assert.Equal(t, mgl64.Vec3{12, 12, 8}, follow.PivotLag)

	aim := modes["aim"]
	assert.Equal(t, 10, aim.Priority)
	assert.Equal(t, 1.5, aim.MaxDistance, "max_distance по умолчанию равен длине штанги")
	assert.Equal(t, mgl64.Vec3{}, aim.Socket(camera.OrientationRightShoulder))
	assert.Equal(t, []string{camera.FlagAiming}, aim.Enter.All)

	_, _, _, err = ParsePresets([]byte("modes:\n  - id: x\n    style: orbit\n"))
	assert.Error(t, err)
	_, _, _, err = ParsePresets([]byte("modes:\n  - id: x\n    sockets: {center: [1, 2]}\n"))
	assert.Error(t, err)
	_, _, _, err = ParsePresets([]byte("modes:\n  - id: x\n  - id: x\n"))
	assert.Error(t, err)
}

func TestFileStoreReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(presetsYAML), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, "follow", store.DefaultID())

	m, err := NewMachine(store, store.DefaultID())
	require.NoError(t, err)
	assert.Equal(t, []string{"follow", "aim"}, m.Modes())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan struct{}, 4)
	go func() {
		_ = store.Watch(ctx, func() {
			m.MarkDirty()
			reloaded <- struct{}{}
		})
	}()

	// Даём наблюдателю подписаться на каталог
	time.Sleep(100 * time.Millisecond)
	updated := presetsYAML + `
  - id: death
    style: death
    priority: 100
    enter: {any: [is-dead]}
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("пресеты не перечитаны")
	}

	tr, changed := m.Evaluate(snapshot(camera.FlagDead), time.Now())
	require.True(t, changed)
	assert.Equal(t, "death", tr.To.ID)
}

func TestFileStoreKeepsModesOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(presetsYAML), 0o644))
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("modes: [:"), 0o644))
	assert.Error(t, store.Load())

	_, err = store.GetCameraMode("aim")
	assert.NoError(t, err)
	_, err = store.GetCameraMode("nope")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
