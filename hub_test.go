package drawrelay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQueueClient returns a client with no socket; frames pile up in its queue.
func newQueueClient(id string) *client {
	c := &client{id: id}
	c.wakeup = sync.NewCond(&c.mutex)
	return c
}

func (c *client) pending() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var frames []string
	for _, f := range c.queued {
		frames = append(frames, string(f))
	}
	return frames
}

type recordingBus struct {
	mutex     sync.Mutex
	published []string
}

func (b *recordingBus) Publish(_ context.Context, frame []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.published = append(b.published, string(frame))
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, _ func([]byte)) error {
	<-ctx.Done()
	return nil
}

func (b *recordingBus) Close() error { return nil }

func TestHubBroadcastSkipsSender(t *testing.T) {
	h := newHub(nil)
	defer h.stop()

	a, b, c := newQueueClient("a"), newQueueClient("b"), newQueueClient("c")
	require.True(t, h.addClient(a))
	require.True(t, h.addClient(b))
	require.True(t, h.addClient(c))

	h.broadcast(a, []byte("one"))
	h.broadcast(b, []byte("two"))
	require.Equal(t, 3, h.clientCount())

	assert.Equal(t, []string{"two"}, a.pending())
	assert.Equal(t, []string{"one"}, b.pending())
	assert.Equal(t, []string{"one", "two"}, c.pending())
}

func TestHubRemovedClientReceivesNothing(t *testing.T) {
	h := newHub(nil)
	defer h.stop()

	a, b, c := newQueueClient("a"), newQueueClient("b"), newQueueClient("c")
	h.addClient(a)
	h.addClient(b)
	h.addClient(c)
	h.removeClient(b)
	h.broadcast(c, []byte("stroke"))

	require.Equal(t, 2, h.clientCount())
	assert.Equal(t, []string{"stroke"}, a.pending())
	assert.Empty(t, b.pending())
	assert.Empty(t, c.pending())

	// removing twice is harmless
	h.removeClient(b)
	assert.Equal(t, 2, h.clientCount())
}

func TestHubDeliverReachesEveryone(t *testing.T) {
	h := newHub(nil)
	defer h.stop()

	a, b := newQueueClient("a"), newQueueClient("b")
	h.addClient(a)
	h.addClient(b)
	h.deliver([]byte("remote"))
	h.clientCount()

	assert.Equal(t, []string{"remote"}, a.pending())
	assert.Equal(t, []string{"remote"}, b.pending())
}

func TestHubPublishesToBus(t *testing.T) {
	bus := &recordingBus{}
	h := newHub(bus)
	defer h.stop()

	a := newQueueClient("a")
	h.addClient(a)
	h.broadcast(a, []byte("frame"))

	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	assert.Equal(t, []string{"frame"}, bus.published)
}

func TestHubStop(t *testing.T) {
	h := newHub(nil)
	a := newQueueClient("a")
	h.addClient(a)

	h.stop()
	h.stop()

	a.mutex.Lock()
	assert.True(t, a.closed)
	a.mutex.Unlock()

	// operations after stop do not block
	assert.False(t, h.addClient(newQueueClient("b")))
	h.broadcast(a, []byte("late"))
	assert.Equal(t, 0, h.clientCount())
}

func TestClientQueueLimit(t *testing.T) {
	c := newQueueClient("slow")
	for i := 0; i < maxQueuedFrames; i++ {
		c.enqueue([]byte("x"))
	}
	assert.Len(t, c.pending(), maxQueuedFrames)

	c.enqueue([]byte("overflow"))
	c.enqueue([]byte("after close"))

	c.mutex.Lock()
	defer c.mutex.Unlock()
	assert.True(t, c.closed)
	assert.Len(t, c.queued, maxQueuedFrames)
}
