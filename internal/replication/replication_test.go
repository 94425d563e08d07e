package replication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annel0/camera-rig/internal/eventbus"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/annel0/camera-rig/internal/transport"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleState(seq uint64) State {
	return State{
		CharacterID: "hero",
		Pivot:       mgl64.Vec3{1, 2, 3},
		Velocity:    mgl64.Vec3{2, 0, 0},
		Yaw:         0.5,
		Pitch:       -0.2,
		Distance:    3.4,
		ModeID:      "follow",
		Sequence:    seq,
		TimestampMs: -42,
	}
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	data := Encode(sampleState(7))
	// Поле из будущей версии той же схемы
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "future")

	got, err := Decode(data)
	require.NoError(t, err)

	want := sampleState(7)
	want.Schema = SchemaVersion
	assert.Equal(t, want, got)
}

func TestCodecSchemaMismatch(t *testing.T) {
	s := sampleState(1)
	s.Schema = SchemaVersion + 1
	got, err := Decode(Encode(s))
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
	assert.Equal(t, "hero", got.CharacterID, "частично разобранное состояние доступно для диагностики")

	// Пакет без версии схемы
	var raw []byte
	raw = protowire.AppendTag(raw, fieldSequence, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 3)
	_, err = Decode(raw)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	_, err = Decode([]byte{0xff})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSchemaMismatch))
}

func TestFrameCodecPackAndExport(t *testing.T) {
	codec, err := NewFrameCodec()
	require.NoError(t, err)
	defer codec.Close()

	states := []State{sampleState(1), sampleState(2), sampleState(3)}
	got, err := codec.Unpack(codec.Pack(states))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[1].Sequence)

	ctx := context.Background()
	journal := storage.NewMemoryJournal(0)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, journal.Append(ctx, storage.Record{CharacterID: "hero", Sequence: i, Payload: Encode(sampleState(i))}))
	}

	frame, n, err := codec.Export(ctx, journal, "hero", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err = codec.Unpack(frame)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[0].Sequence)
	assert.Equal(t, uint64(4), got[2].Sequence)

	_, err = codec.Unpack([]byte("not zstd"))
	assert.Error(t, err)
}

// recordingTransport запоминает отправленные пакеты
type recordingTransport struct {
	sent [][]byte
	err  error
}

func (r *recordingTransport) Publish(_ context.Context, _ string, payload []byte) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, payload)
	return nil
}

func (r *recordingTransport) Subscribe(context.Context, string, transport.Handler) (transport.Subscription, error) {
	return nil, errors.New("not supported")
}

func (r *recordingTransport) Close() error { return nil }

func TestAuthorityCadenceAndSequence(t *testing.T) {
	ctx := context.Background()
	tr := &recordingTransport{}
	store := storage.NewMemoryStateStore()
	journal := storage.NewMemoryJournal(0)
	a := NewAuthority("hero", tr, WithInterval(100*time.Millisecond), WithStateStore(store), WithJournal(journal))

	t0 := time.Unix(1000, 0)
	steps := []struct {
		at   time.Duration
		sent bool
	}{
		{0, true},
		{50 * time.Millisecond, false},
		{100 * time.Millisecond, true},
		{150 * time.Millisecond, false},
		{260 * time.Millisecond, true},
	}
	for _, step := range steps {
		sent, err := a.Publish(ctx, t0.Add(step.at), State{ModeID: "follow"})
		require.NoError(t, err)
		assert.Equal(t, step.sent, sent, "шаг %v", step.at)
	}

	assert.Equal(t, uint64(3), a.Sequence(), "номер растёт только при отправке")
	require.Len(t, tr.sent, 3)

	var prev uint64
	for _, payload := range tr.sent {
		s, err := Decode(payload)
		require.NoError(t, err)
		assert.Greater(t, s.Sequence, prev)
		assert.Equal(t, "hero", s.CharacterID)
		prev = s.Sequence
	}

	stored, err := store.Load(ctx, "hero")
	require.NoError(t, err)
	last, err := Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last.Sequence)
	assert.Equal(t, t0.Add(260*time.Millisecond).UnixMilli(), last.TimestampMs)

	records, err := journal.Range(ctx, "hero", 0, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	require.NoError(t, a.Forget(ctx))
	_, err = store.Load(ctx, "hero")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestAuthoritySendError(t *testing.T) {
	tr := &recordingTransport{err: errors.New("link down")}
	a := NewAuthority("hero", tr, WithInterval(0))

	sent, err := a.Publish(context.Background(), time.Unix(0, 0), State{})
	assert.False(t, sent)
	assert.Error(t, err)

	tr.err = nil
	sent, err = a.Publish(context.Background(), time.Unix(0, 0), State{})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, uint64(2), a.Sequence(), "потерянный номер не переиспользуется")
}

func TestObserverOutOfOrder(t *testing.T) {
	o := NewObserver("hero")
	now := time.Unix(10, 0)

	assert.True(t, o.Receive(Encode(sampleState(5)), now))
	assert.False(t, o.Receive(Encode(sampleState(3)), now))
	assert.False(t, o.Receive(Encode(sampleState(5)), now))

	s, ok := o.Sample(now)
	require.True(t, ok)
	assert.Equal(t, uint64(5), s.Sequence)

	stats := o.Stats()
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Equal(t, uint64(1), stats.Stale)
	assert.Equal(t, uint64(1), stats.Duplicate)

	other := sampleState(9)
	other.CharacterID = "villain"
	assert.False(t, o.Receive(Encode(other), now), "чужой персонаж")
	stats = o.Stats()
	assert.Equal(t, uint64(1), stats.Misrouted)
	assert.Zero(t, stats.DecodeErrors, "чужой пакет не считается повреждённым")

	assert.False(t, o.Receive([]byte{0xff, 0xff}, now))
	assert.Equal(t, uint64(1), o.Stats().DecodeErrors)
}

func TestObserverSnapshotIsConsistent(t *testing.T) {
	o := NewObserver("hero", WithStaleness(500*time.Millisecond))
	t0 := time.Unix(10, 0)

	snap := o.Snapshot(t0)
	assert.False(t, snap.Ok)
	assert.True(t, snap.Stale)

	require.True(t, o.Receive(Encode(sampleState(1)), t0))
	snap = o.Snapshot(t0.Add(250 * time.Millisecond))
	require.True(t, snap.Ok)
	assert.False(t, snap.Stale)
	assert.False(t, snap.SchemaMismatch)
	assert.InDelta(t, 1.5, snap.State.Pivot.X(), 1e-9)

	snap = o.Snapshot(t0.Add(time.Second))
	assert.True(t, snap.Stale)
	assert.Equal(t, uint64(1), snap.State.Sequence)

	require.True(t, o.Receive(Encode(sampleState(2)), t0.Add(time.Second)))
	snap = o.Snapshot(t0.Add(time.Second))
	assert.False(t, snap.Stale, "свежий пакет снимает устаревание в том же чтении")
	assert.Equal(t, uint64(2), snap.State.Sequence)

	future := sampleState(3)
	future.Schema = SchemaVersion + 1
	o.Receive(Encode(future), t0.Add(time.Second))
	snap = o.Snapshot(t0.Add(time.Second))
	assert.True(t, snap.SchemaMismatch)
	assert.Equal(t, uint64(2), snap.State.Sequence)
}

func TestObserverExtrapolationFreezes(t *testing.T) {
	o := NewObserver("hero", WithStaleness(500*time.Millisecond))
	t0 := time.Unix(10, 0)

	_, ok := o.Sample(t0)
	assert.False(t, ok)
	assert.True(t, o.Stale(t0))

	require.True(t, o.Receive(Encode(sampleState(1)), t0))

	s, _ := o.Sample(t0.Add(250 * time.Millisecond))
	assert.InDelta(t, 1.5, s.Pivot.X(), 1e-9, "скорость 2 м/с за 0.25 с")
	assert.False(t, o.Stale(t0.Add(250*time.Millisecond)))

	atWindow, _ := o.Sample(t0.Add(500 * time.Millisecond))
	later, _ := o.Sample(t0.Add(5 * time.Second))
	assert.InDelta(t, 2.0, atWindow.Pivot.X(), 1e-9)
	assert.Equal(t, atWindow.Pivot, later.Pivot, "после окна позиция замирает")
	assert.True(t, o.Stale(t0.Add(5*time.Second)))

	// Часы наблюдателя отстают: экстраполяция не идёт назад
	early, _ := o.Sample(t0.Add(-time.Second))
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, early.Pivot)
}

func TestObserverSchemaMismatchFreezesStatic(t *testing.T) {
	o := NewObserver("hero")
	t0 := time.Unix(10, 0)
	require.True(t, o.Receive(Encode(sampleState(1)), t0))

	future := sampleState(2)
	future.Schema = SchemaVersion + 1
	assert.False(t, o.Receive(Encode(future), t0))
	assert.True(t, o.SchemaMismatch())

	s, ok := o.Sample(t0.Add(200 * time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, s.Pivot, "без экстраполяции")
	assert.Equal(t, uint64(1), o.Stats().SchemaMismatch)

	require.True(t, o.Receive(Encode(sampleState(3)), t0))
	assert.False(t, o.SchemaMismatch())
}

func TestObserverSeed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStateStore()
	now := time.Unix(10, 0)
	o := NewObserver("hero", WithClock(func() time.Time { return now }))

	assert.True(t, errors.Is(o.SeedFromStore(ctx, store), storage.ErrNotFound))

	require.NoError(t, store.Save(ctx, "hero", Encode(sampleState(4))))
	require.NoError(t, o.SeedFromStore(ctx, store))
	s, ok := o.Sample(now)
	require.True(t, ok)
	assert.Equal(t, uint64(4), s.Sequence)

	assert.False(t, o.Seed(sampleState(2), now), "старое состояние не откатывает новое")
	assert.False(t, o.Receive(Encode(sampleState(4)), now))
	assert.True(t, o.Receive(Encode(sampleState(6)), now))
}

func TestAttachOverBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := transport.NewBusTransport(eventbus.NewMemoryBus(64))
	defer tr.Close()

	o := NewObserver("hero")
	sub, err := Attach(ctx, tr, o)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	a := NewAuthority("hero", tr, WithInterval(0))
	now := time.Now()
	for i := 0; i < 3; i++ {
		_, err := a.Publish(ctx, now, State{Pivot: mgl64.Vec3{float64(i), 0, 0}, ModeID: "follow"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return o.Stats().Accepted == 3
	}, 2*time.Second, 10*time.Millisecond)

	s, ok := o.Sample(time.Now())
	require.True(t, ok)
	assert.Equal(t, uint64(3), s.Sequence)
	assert.Equal(t, 2.0, s.Pivot.X())
}
