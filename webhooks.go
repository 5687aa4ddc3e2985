package drawrelay

import (
	"context"
	"log"
	"sync"
	"time"
)

// boardEmptyEvent is posted some time after the last client leaves.
const boardEmptyEvent = "boardEmpty"

const defaultWebhookDelay = 5 * time.Minute

type webhookEvent struct {
	sendBy   time.Time
	url      string
	name     string
	username string
	password string
}

type webhookQueue struct {
	events []webhookEvent
	mutex  sync.Mutex
	cancel func()
	done   chan struct{}
	sent   sync.WaitGroup
}

func createWebhookQueue() *webhookQueue {
	whq := &webhookQueue{
		cancel: func() {},
		done:   make(chan struct{}),
	}

	go func() {
		// in a loop, figure out how long we have to sleep for and then
		// wait for that amount of time.
		for {
			whq.mutex.Lock()
			ctx, cancel := context.WithCancel(context.Background())

			now := time.Now()
			at := now.Add(time.Hour * 24)
			removed := 0
			for i := range whq.events {
				item := whq.events[i]
				if !item.sendBy.After(now) {
					whq.sent.Add(1)
					go func() {
						defer whq.sent.Done()
						item.send()
					}()
					removed++
					continue
				} else if item.sendBy.Before(at) {
					at = item.sendBy
				}

				if removed > 0 {
					whq.events[i-removed] = whq.events[i]
				}
			}
			whq.events = whq.events[:len(whq.events)-removed]

			whq.cancel = cancel
			whq.mutex.Unlock()

			timer := time.NewTimer(at.Sub(now))
			select {
			case <-ctx.Done():
			case <-timer.C:
			case <-whq.done:
				timer.Stop()
				cancel()
				return
			}
			timer.Stop()
			cancel()
		}
	}()

	return whq
}

func (whq *webhookQueue) removeIf(fn func(event webhookEvent) bool) {
	whq.mutex.Lock()
	defer whq.mutex.Unlock()
	removed := 0
	l := len(whq.events)
	for i := range whq.events {
		if fn(whq.events[i]) {
			removed++
			log.Printf("Remove queued webhook %s", whq.events[i].name)
		} else if removed > 0 {
			whq.events[i-removed] = whq.events[i]
		}
	}

	whq.events = whq.events[:l-removed]
}

func (whq *webhookQueue) add(event webhookEvent) {
	whq.mutex.Lock()
	defer whq.mutex.Unlock()
	log.Printf("Queue webhook %s for %v", event.name, event.sendBy.Format(time.RFC3339))
	whq.events = append(whq.events, event)
	whq.cancel()
}

// stop drops pending events and waits for requests already in flight.
func (whq *webhookQueue) stop() {
	select {
	case <-whq.done:
	default:
		close(whq.done)
	}
	whq.mutex.Lock()
	whq.events = nil
	whq.mutex.Unlock()
	whq.sent.Wait()
}

func (event webhookEvent) send() {
	result := MakeHTTPRequest(HTTPRequestArgs{
		URI: event.url,
		Data: map[string]string{
			"event": event.name,
		},
		Username: event.username,
		Password: event.password,
	})

	log.Printf("%s to %s: HTTP Status=%v Error=%v", event.name, event.url,
		result.StatusCode, result.Err)
}
