package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch chan *LocalMessage
}

// LocalPubSub fans published messages out to in-process subscribers. It
// stands in for Redis Pub/Sub when the server runs as a single instance.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	bufSize int
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subs:    make(map[string]map[*subscriber]struct{}),
		bufSize: bufSize,
	}
}

// Publish delivers message to every subscriber of channel. Delivery never
// blocks the publisher: a subscriber whose buffer is full loses the message.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for s := range ps.subs[channel] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a message stream for the given channels and a cancel
// function. Cancel is idempotent and closes the stream.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	ch := make(chan *LocalMessage, ps.bufSize)
	s := &subscriber{ch: ch}

	ps.mu.Lock()
	for _, c := range channels {
		if ps.subs[c] == nil {
			ps.subs[c] = make(map[*subscriber]struct{})
		}
		ps.subs[c][s] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range channels {
				delete(ps.subs[c], s)
				if len(ps.subs[c]) == 0 {
					delete(ps.subs, c)
				}
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
