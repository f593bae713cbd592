package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nvoropaev/concord/cache"
	"go.uber.org/zap"
)

// busTopic is the single pub/sub topic all server instances listen on.
// Frames carry their own routing scope, so one ordered stream is enough and
// per-channel delivery order falls out of the bus's publish order.
const busTopic = "concord:events"

// Frame scopes.
const (
	scopeChannel = "channel"
	scopeUser    = "user"
	scopeAll     = "all"
)

type frame struct {
	Scope string `json:"scope"`
	ID    int64  `json:"id,omitempty"`
	Event Event  `json:"event"`
}

// Broadcaster fans domain events out to connected sessions through the
// pub/sub bus. Delivery is at most once: an event is pushed to the sessions
// connected at dispatch time, never queued for later, and a slow session's
// events are dropped rather than buffered without bound.
type Broadcaster struct {
	sessions *SessionManager
	bus      cache.PubSub
	logger   *zap.Logger

	mu   sync.Mutex
	seqs map[string]uint64 // scope key → last assigned seq

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBroadcaster creates a Broadcaster. Call Start before publishing.
func NewBroadcaster(sessions *SessionManager, bus cache.PubSub, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		sessions: sessions,
		bus:      bus,
		logger:   logger,
		seqs:     make(map[string]uint64),
	}
}

// Start subscribes to the event bus and begins dispatching to sessions.
func (b *Broadcaster) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	msgs, unsubscribe, err := b.bus.Subscribe(ctx, busTopic)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe event bus: %w", err)
	}
	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		defer unsubscribe()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				b.dispatch([]byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close stops the dispatch loop.
func (b *Broadcaster) Close() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}

func (b *Broadcaster) dispatch(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		b.logger.Warn("malformed bus frame", zap.Error(err))
		return
	}
	data, err := json.Marshal(&f.Event)
	if err != nil {
		return
	}
	switch f.Scope {
	case scopeAll:
		b.sessions.BroadcastAll(data)
	case scopeUser:
		if s := b.sessions.Get(f.ID); s != nil {
			s.SendRaw(data)
		}
	case scopeChannel:
		for _, s := range b.sessions.Members(f.ID) {
			s.SendRaw(data)
		}
	default:
		b.logger.Warn("unknown bus frame scope", zap.String("scope", f.Scope))
	}
}

// publish assigns the next seq for the scope and puts the frame on the bus.
// The lock is held across Publish so seq order matches bus order.
func (b *Broadcaster) publish(ctx context.Context, scope string, id int64, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	key := fmt.Sprintf("%s:%d", scope, id)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seqs[key]++
	f := frame{
		Scope: scope,
		ID:    id,
		Event: Event{Seq: b.seqs[key], Type: eventType, Payload: body},
	}
	raw, err := json.Marshal(&f)
	if err != nil {
		return err
	}
	return b.bus.Publish(ctx, busTopic, string(raw))
}

// ToChannel publishes an event to every session subscribed to channelID.
// Events published to the same channel are delivered in publish order.
func (b *Broadcaster) ToChannel(ctx context.Context, channelID int64, eventType string, payload interface{}) error {
	return b.publish(ctx, scopeChannel, channelID, eventType, payload)
}

// ToUser publishes an event to one user's session, if connected.
func (b *Broadcaster) ToUser(ctx context.Context, userID int64, eventType string, payload interface{}) error {
	return b.publish(ctx, scopeUser, userID, eventType, payload)
}

// ToAll publishes an event to every connected session.
func (b *Broadcaster) ToAll(ctx context.Context, eventType string, payload interface{}) error {
	return b.publish(ctx, scopeAll, 0, eventType, payload)
}
