package drawrelay

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// PeerBus carries relayed frames between relay instances that serve the same
// board, so that clients connected to different processes see each other.
type PeerBus interface {
	// Publish sends a frame relayed by this instance to the others.
	Publish(ctx context.Context, frame []byte) error

	// Subscribe calls deliver for every frame published by another
	// instance. It blocks until ctx is done or the bus fails.
	Subscribe(ctx context.Context, deliver func(frame []byte)) error

	Close() error
}

// DefaultRedisChannel is the Pub/Sub channel used when none is given.
const DefaultRedisChannel = "drawrelay"

// RedisPeerBus is a PeerBus using Redis Pub/Sub.
// Each message is the publishing instance's id, a newline, then the frame.
// Nothing is stored in Redis.
type RedisPeerBus struct {
	rdb     *redis.Client
	channel string
	origin  string
}

// NewRedisPeerBus creates a peer bus on the given Redis server.
func NewRedisPeerBus(options *redis.Options, channel string) *RedisPeerBus {
	if channel == "" {
		channel = DefaultRedisChannel
	}

	return &RedisPeerBus{
		rdb:     redis.NewClient(options),
		channel: channel,
		origin:  uuid.NewString(),
	}
}

// NewRedisPeerBusFromURL parses a redis:// URL and creates a peer bus.
func NewRedisPeerBusFromURL(url, channel string) (*RedisPeerBus, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisPeerBus(options, channel), nil
}

// Publish ...
func (bus *RedisPeerBus) Publish(ctx context.Context, frame []byte) error {
	msg := make([]byte, 0, len(bus.origin)+1+len(frame))
	msg = append(msg, bus.origin...)
	msg = append(msg, '\n')
	msg = append(msg, frame...)
	return bus.rdb.Publish(ctx, bus.channel, msg).Err()
}

// Subscribe ...
func (bus *RedisPeerBus) Subscribe(ctx context.Context, deliver func(frame []byte)) error {
	pubsub := bus.rdb.Subscribe(ctx, bus.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", bus.channel, err)
	}
	log.Printf("Peer bus %s subscribed to %s", bus.origin, bus.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			payload := []byte(msg.Payload)
			i := bytes.IndexByte(payload, '\n')
			if i < 0 {
				log.Printf("Peer bus: dropping message without origin")
				continue
			}

			if string(payload[:i]) == bus.origin {
				continue
			}
			deliver(payload[i+1:])
		}
	}
}

// Close ...
func (bus *RedisPeerBus) Close() error {
	return bus.rdb.Close()
}
