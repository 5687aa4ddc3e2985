package drawrelay

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Default maximum message size
const maxMessageSize = 100 * 1024

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Pings go out at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// A receiver this far behind is dropped.
	maxQueuedFrames = 1024
)

type client struct {
	id       string
	ws       *websocket.Conn
	hub      *hub
	protocol Protocol

	// A single thread writes to the socket. When another thread wants to
	// send, it appends to the queue and signals the condition variable.
	// To close the socket, we set closed = true and signal the condition.
	wakeup *sync.Cond
	mutex  sync.Mutex
	closed bool

	// frames waiting for the write thread
	queued [][]byte
}

// Takes over the connection and runs the client. Responsible for closing the socket.
func runClient(h *hub, ws *websocket.Conn, protocol Protocol, maxSize int) {
	c := &client{
		id:       uuid.NewString(),
		ws:       ws,
		hub:      h,
		protocol: protocol,
	}
	c.wakeup = sync.NewCond(&c.mutex)

	if maxSize <= 0 {
		maxSize = maxMessageSize
	}
	ws.SetReadLimit(int64(maxSize))

	if !h.addClient(c) {
		log.Printf("Client %v rejected: relay is closed", c.id)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	done := make(chan struct{})
	go c.writeThread()
	go c.pingThread(done)

	defer func() {
		close(done)
		h.removeClient(c)
		c.close()
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Client %v: %v", c.id, err)
			}
			break
		}

		c.processMessage(message)
	}
}

func (c *client) processMessage(message []byte) {
	e, err := decodeEvent(message)
	if err != nil {
		log.Printf("Client %v sent a malformed frame: %v", c.id, err)
		return
	}

	if !c.protocol.Supports(e.Name) {
		log.Printf("Client %v sent unexpected event %q", c.id, e.Name)
		return
	}

	if !carriesPayload(e.Name) {
		e.Data = nil
	}

	c.hub.broadcast(c, encodeEvent(e))
}

func (c *client) writeThread() {
	defer func() {
		err := recover()
		if err != nil {
			log.Printf("Handling panic: %v", err)
		}
		c.ws.Close()
	}()

	closed := false
	for !closed {
		c.mutex.Lock()

		for len(c.queued) == 0 && !c.closed {
			c.wakeup.Wait()
		}

		messages := c.queued
		closed = c.closed
		c.queued = nil
		c.mutex.Unlock()

		// send all the queued messages.
		for _, message := range messages {
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Client %v: error writing to socket: %v", c.id, err)
				c.close()
				return
			}
		}
	}

	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (c *client) pingThread(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// enqueue never blocks; it is called from the hub goroutine.
func (c *client) enqueue(frame []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}

	if len(c.queued) >= maxQueuedFrames {
		log.Printf("Client %v is %d frames behind. Closing connection.", c.id, len(c.queued))
		c.closed = true
		c.wakeup.Signal()
		return
	}

	c.queued = append(c.queued, frame)
	c.wakeup.Signal()
}

// close lets the write thread flush what is queued, then closes the socket.
func (c *client) close() {
	c.mutex.Lock()
	c.closed = true
	c.wakeup.Signal()
	c.mutex.Unlock()
}
