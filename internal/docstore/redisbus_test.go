package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T, mr *miniredis.Miniredis) *RedisBus {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisBus(client, "test:changes", zap.NewNop())
}

type collected struct {
	mu    sync.Mutex
	names []string
}

func (c *collected) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

func (c *collected) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func TestRedisBus_DeliversToOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	listener := newTestBus(t, mr)
	publisher := newTestBus(t, mr)
	defer func() { _ = publisher.Close() }()
	assert.NotEqual(t, listener.Origin(), publisher.Origin())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := &collected{}
	done := make(chan error, 1)
	go func() { done <- listener.Listen(ctx, got.add) }()

	select {
	case <-listener.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener never subscribed")
	}

	// Own publications are ignored.
	require.NoError(t, listener.Publish(ctx, "events"))
	require.NoError(t, publisher.Publish(ctx, "issues"))

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"issues"}, got.get())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	_ = listener.Close()
}

func TestRedisBus_WakesRemoteSubscriptions(t *testing.T) {
	mr := miniredis.RunT(t)
	dbPath := t.TempDir() + "/shared.db"

	busA := newTestBus(t, mr)
	busB := newTestBus(t, mr)

	a, err := OpenSQLite(dbPath, WithBus(busA))
	require.NoError(t, err)
	require.NoError(t, a.Migrate(context.Background()))
	defer func() { _ = a.Close() }()

	b, err := OpenSQLite(dbPath, WithBus(busB))
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	for _, bus := range []*RedisBus{busA, busB} {
		select {
		case <-bus.Ready():
		case <-time.After(2 * time.Second):
			t.Fatal("bus never subscribed")
		}
	}

	got := &snapshots{}
	unsub, err := b.Subscribe(context.Background(), NewQuery("issues"), got.add)
	require.NoError(t, err)
	defer unsub()
	require.Eventually(t, func() bool { return got.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = a.Create(context.Background(), "issues", Fields{"title": "from A"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(got.last()) == 1 }, 2*time.Second, 10*time.Millisecond)
}
