package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/replication"
	"github.com/annel0/camera-rig/internal/resolver"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server   *RestServer
	registry *resolver.Registry
	journal  *storage.MemoryJournal
	codec    *replication.FrameCodec
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	registry := resolver.NewRegistry()
	journal := storage.NewMemoryJournal(0)
	codec, err := replication.NewFrameCodec()
	require.NoError(t, err)
	t.Cleanup(func() { codec.Close() })

	reg := prometheus.NewRegistry()
	server, err := NewRestServer(Config{
		Registry:   registry,
		Journal:    journal,
		Codec:      codec,
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)
	return fixture{server: server, registry: registry, journal: journal, codec: codec}
}

func (f fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) GenericResponse {
	t.Helper()
	resp := GenericResponse{Data: data}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t)
	f.registry.Present(resolver.Frame{CharacterID: "hero", Degraded: camera.DegradedStale})

	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 1.0, health["cameras"])

	w = f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	stats := map[string]interface{}{}
	resp := decode(t, w, &stats)
	assert.True(t, resp.Success)
	assert.Equal(t, 1.0, stats["degraded_cameras"])
	assert.Contains(t, stats, "goroutines")

	w = f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCameraEndpoints(t *testing.T) {
	f := newFixture(t)
	f.registry.Present(resolver.Frame{
		CharacterID: "hero",
		ModeID:      "aim",
		Style:       camera.StyleAiming,
		Transform: camera.Transform{
			Position: mgl64.Vec3{1, 2, 3},
			Rotation: mgl64.QuatIdent(),
			FOV:      70,
			Distance: 1.5,
		},
		Collapsed: true,
		Degraded:  camera.DegradedProbe,
		Sequence:  9,
		At:        time.Unix(100, 0).UTC(),
	})
	f.registry.Present(resolver.Frame{CharacterID: "alpha", Transform: camera.IdentityTransform(90)})

	var list []CameraView
	w := f.get(t, "/api/cameras")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].CharacterID)

	var view CameraView
	w = f.get(t, "/api/cameras/hero")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &view)
	assert.Equal(t, "aim", view.Mode)
	assert.Equal(t, "aiming", view.Style)
	assert.Equal(t, [3]float64{1, 2, 3}, view.Position)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, view.Rotation)
	assert.Equal(t, []string{"probe"}, view.Degraded)
	assert.True(t, view.Collapsed)
	assert.Equal(t, uint64(9), view.Sequence)

	w = f.get(t, "/api/cameras/ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		payload := replication.Encode(replication.State{CharacterID: "hero", Sequence: i, ModeID: "follow", Distance: float64(i)})
		require.NoError(t, f.journal.Append(ctx, storage.Record{CharacterID: "hero", Sequence: i, Payload: payload}))
	}

	var frames []ReplayFrame
	w := f.get(t, "/api/cameras/hero/replay?from=2&to=4")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &frames)
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(2), frames[0].Sequence)
	assert.Equal(t, 4.0, frames[2].Distance)

	w = f.get(t, "/api/cameras/hero/replay?from=4&format=zstd")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-Frame-Count"))
	states, err := f.codec.Unpack(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, uint64(5), states[1].Sequence)

	for _, bad := range []string{"from=x", "to=-1", "from=5&to=2"} {
		w = f.get(t, "/api/cameras/hero/replay?"+bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestReplayWithoutJournal(t *testing.T) {
	server, err := NewRestServer(Config{Registry: resolver.NewRegistry(), Registerer: prometheus.NewRegistry(), Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cameras/hero/replay", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	_, err = NewRestServer(Config{})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	reg := prometheus.NewRegistry()
	server, err := NewRestServer(Config{Addr: "127.0.0.1:0", Registry: resolver.NewRegistry(), Registerer: reg, Gatherer: reg})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("сервер не остановился")
	}
}
