package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "tokenstream-events"

// Bus fans events out to local subscribers and, when a Redis client is
// configured, publishes them on a pub/sub channel.
type Bus struct {
	client redis.UniversalClient
	ch     string

	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// BusOptions configure the bus.
type BusOptions struct {
	Client  redis.UniversalClient
	Channel string
}

// NewBus creates a bus. A nil client keeps it process-local.
func NewBus(opts BusOptions) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = defaultChannel
	}
	return &Bus{
		client:      opts.Client,
		ch:          channel,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish broadcasts ev locally and to Redis.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.broadcast(ev)
	if b.client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe registers a local subscriber and returns its channel plus a
// cancel func. The subscription also ends with ctx.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}

func (b *Bus) broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("events: dropping event for slow subscriber", "event_id", ev.ID, "type", ev.Type)
		}
	}
}

// RedisConfig configures the pub/sub client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient returns a connected client, or nil when no address is set.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
