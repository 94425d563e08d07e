package presetsync

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, key, node string) []byte {
	t.Helper()
	data, err := json.Marshal(Message{Key: key, NodeID: node, Timestamp: time.Now()})
	require.NoError(t, err)
	return data
}

func TestHandleFiltersOwnAndDuplicateMessages(t *testing.T) {
	inv := New(nil, Config{DedupeWindow: time.Second}, "node-a")
	defer inv.Close()

	var keys []string
	inv.handler = func(key string) error {
		keys = append(keys, key)
		return nil
	}

	t0 := time.Now()
	inv.handle(message(t, KeyPresets, "node-a"), t0)
	assert.Empty(t, keys, "собственное уведомление игнорируется")

	inv.handle(message(t, KeyPresets, "node-b"), t0)
	inv.handle(message(t, KeyPresets, "node-c"), t0.Add(100*time.Millisecond))
	assert.Equal(t, []string{KeyPresets}, keys, "повтор в окне дедупликации")

	inv.handle(message(t, KeyPresets, "node-b"), t0.Add(2*time.Second))
	assert.Len(t, keys, 2)

	assert.Equal(t, int64(4), inv.Stats().Received)
}

func TestHandleCountsErrors(t *testing.T) {
	inv := New(nil, Config{}, "node-a")
	defer inv.Close()

	inv.handle([]byte("{broken"), time.Now())
	assert.Equal(t, int64(1), inv.Stats().Errors)

	inv.handler = func(string) error { return errors.New("reload failed") }
	inv.handle(message(t, KeyPresets, "node-b"), time.Now())
	assert.Equal(t, int64(2), inv.Stats().Errors)
}

func TestCleanupDropsExpiredKeys(t *testing.T) {
	inv := New(nil, Config{DedupeWindow: time.Second}, "node-a")
	defer inv.Close()

	t0 := time.Now()
	inv.recordKey(KeyPresets, t0)
	assert.True(t, inv.isDuplicate(KeyPresets, t0.Add(500*time.Millisecond)))

	inv.cleanup(t0.Add(2 * time.Second))
	assert.False(t, inv.isDuplicate(KeyPresets, t0.Add(2*time.Second)))
}

// TestNATSRoundTrip запускается только при заданном NATS_URL
func TestNATSRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL не задан")
	}

	cfg := Config{NATSURL: url, Subject: "test.camera.presets." + time.Now().Format("150405.000")}
	a, err := Dial(cfg, "node-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := Dial(cfg, "node-b")
	require.NoError(t, err)
	defer b.Close()

	got := make(chan string, 1)
	require.NoError(t, b.Subscribe(context.Background(), func(key string) error {
		got <- key
		return nil
	}))

	require.NoError(t, a.Publish(context.Background(), KeyPresets))
	select {
	case key := <-got:
		assert.Equal(t, KeyPresets, key)
	case <-time.After(3 * time.Second):
		t.Fatal("уведомление не доставлено")
	}
}
