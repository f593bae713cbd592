package local

import (
	"context"
	"sync"
)

// Message is an in-process pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// LocalPubSub is the in-process publish/subscribe backend. Subscribers on
// one topic see messages in publish order; a subscriber whose buffer is full
// misses the message rather than blocking the publisher.
type LocalPubSub struct {
	mu      sync.RWMutex
	topics  map[string]map[chan *Message]struct{}
	bufSize int
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		topics:  make(map[string]map[chan *Message]struct{}),
		bufSize: bufSize,
	}
}

// Publish delivers message to every current subscriber of channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &Message{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for ch := range ps.topics[channel] {
		select {
		case ch <- msg:
		default:
			// Full buffer: the slow subscriber misses this message.
		}
	}
	return nil
}

// Subscribe registers one stream across the given channels. The returned
// cancel function unregisters it and closes the stream; it must be called
// exactly once.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *Message, func(), error) {
	ch := make(chan *Message, ps.bufSize)

	ps.mu.Lock()
	for _, name := range channels {
		subs, ok := ps.topics[name]
		if !ok {
			subs = make(map[chan *Message]struct{})
			ps.topics[name] = subs
		}
		subs[ch] = struct{}{}
	}
	ps.mu.Unlock()

	cancel := func() {
		ps.mu.Lock()
		for _, name := range channels {
			delete(ps.topics[name], ch)
			if len(ps.topics[name]) == 0 {
				delete(ps.topics, name)
			}
		}
		ps.mu.Unlock()
		close(ch)
	}
	return ch, cancel, nil
}
