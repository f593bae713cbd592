package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

const (
	dialTimeout  = 5 * time.Second
	subscribeBuf = 256
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

func dial(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// KV is the Redis-backed key-value store.
type KV struct {
	client *goredis.Client
}

// NewCache connects to Redis and returns a KV store.
func NewCache(cfg Config) (*KV, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &KV{client: client}, nil
}

func (r *KV) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *KV) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *KV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *KV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *KV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// Close releases the underlying connection pool.
func (r *KV) Close() error {
	return r.client.Close()
}

// Message is one received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub is the Redis-backed publish/subscribe client. Redis preserves
// publish order per channel, which the broadcaster relies on.
type PubSub struct {
	client *goredis.Client
}

// NewPubSub connects to Redis and returns a PubSub client.
func NewPubSub(cfg Config) (*PubSub, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &PubSub{client: client}, nil
}

func (r *PubSub) Publish(ctx context.Context, channel, message string) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Subscribe returns a stream of messages for the given channels and a cancel
// function that tears the subscription down and closes the stream.
func (r *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	sub := r.client.Subscribe(ctx, channels...)
	out := make(chan *Message, subscribeBuf)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- &Message{Channel: msg.Channel, Payload: msg.Payload}
		}
	}()

	return out, func() { _ = sub.Close() }, nil
}

// Close releases the underlying connection pool.
func (r *PubSub) Close() error {
	return r.client.Close()
}
