package drawrelay

import (
	"context"
	"log"
	"time"
)

// The hub owns the connection set. Every change to it, and every broadcast,
// runs as a closure on the hub goroutine, one at a time.
type hub struct {
	ch      chan func()
	done    chan struct{}
	stopped chan struct{}
	clients []*client

	// optional fan-out to other relay instances
	bus PeerBus

	webhooks     *webhookQueue
	webhookURL   string
	webhookDelay time.Duration
	secretUser   string
	secretPass   string
}

func newHub(bus PeerBus) *hub {
	h := &hub{
		ch:           make(chan func()),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		bus:          bus,
		webhookDelay: defaultWebhookDelay,
	}

	go func() {
		defer close(h.stopped)
		for {
			select {
			case fn := <-h.ch:
				fn()
			case <-h.done:
				for _, c := range h.clients {
					c.close()
				}
				h.clients = nil
				return
			}
		}
	}()

	return h
}

// do runs fn on the hub goroutine. After stop it is a no-op and
// returns false.
func (h *hub) do(fn func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.ch <- fn:
		return true
	case <-h.done:
		return false
	}
}

func (h *hub) stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	<-h.stopped
	if h.webhooks != nil {
		h.webhooks.stop()
	}
}

// addClient reports false when the hub has already stopped; the client
// then belongs to nobody and must be closed by the caller.
func (h *hub) addClient(c *client) bool {
	return h.do(func() {
		log.Printf("Client %v connected", c.id)
		h.clients = append(h.clients, c)
		if h.webhooks != nil {
			h.webhooks.removeIf(func(event webhookEvent) bool {
				return event.name == boardEmptyEvent
			})
		}
	})
}

func (h *hub) removeClient(c *client) {
	h.do(func() {
		list := h.clients
		for i, value := range list {
			if value == c {
				copy(list[i:], list[i+1:])
				list[len(list)-1] = nil
				h.clients = list[:len(list)-1]
				log.Printf("Client %v disconnected; %d remain", c.id, len(h.clients))
				break
			}
		}

		if len(h.clients) == 0 && h.webhookURL != "" {
			h.queueWebhook(boardEmptyEvent)
		}
	})
}

// broadcast sends frame to every connected client except source, then hands
// it to the peer bus so that other instances relay it too.
func (h *hub) broadcast(source *client, frame []byte) {
	h.do(func() {
		for _, other := range h.clients {
			if other != source {
				other.enqueue(frame)
			}
		}
	})

	if h.bus != nil {
		if err := h.bus.Publish(context.Background(), frame); err != nil {
			log.Printf("peer bus publish failed: %v", err)
		}
	}
}

// deliver sends a frame that arrived from another instance to every local
// client.
func (h *hub) deliver(frame []byte) {
	h.do(func() {
		for _, c := range h.clients {
			c.enqueue(frame)
		}
	})
}

// clientCount returns the size of the connection set, or zero after stop.
func (h *hub) clientCount() int {
	result := make(chan int, 1)
	h.do(func() {
		result <- len(h.clients)
	})

	select {
	case n := <-result:
		return n
	case <-h.done:
		return 0
	}
}

func (h *hub) setWebhook(url, username, password string, delay time.Duration) {
	h.do(func() {
		h.webhookURL = url
		h.secretUser = username
		h.secretPass = password
		if delay > 0 {
			h.webhookDelay = delay
		}
		if url != "" && h.webhooks == nil {
			h.webhooks = createWebhookQueue()
		}
	})
}

// must be called on the hub goroutine
func (h *hub) queueWebhook(name string) {
	h.webhooks.add(webhookEvent{
		sendBy:   time.Now().Add(h.webhookDelay),
		url:      h.webhookURL,
		name:     name,
		username: h.secretUser,
		password: h.secretPass,
	})
}
