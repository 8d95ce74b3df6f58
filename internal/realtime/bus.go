package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel shared by every API instance.
const DefaultChannel = "peerlearn:realtime"

// Envelope is one room event travelling through a Bus.
type Envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Bus carries room events to every instance's local hub.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Start(ctx context.Context, deliver func(Envelope)) error
	Close() error
}

// LocalBus delivers synchronously inside the process.
type LocalBus struct {
	mu      sync.RWMutex
	deliver func(Envelope)
}

// NewLocalBus returns a single-instance bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Start(ctx context.Context, deliver func(Envelope)) error {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
	return nil
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver == nil {
		return errors.New("realtime: bus not started")
	}
	deliver(env)
	return nil
}

func (b *LocalBus) Close() error { return nil }

// RedisBus publishes events on a Redis channel and forwards every message
// received on it, including this instance's own, to the local hub.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger

	mu  sync.Mutex
	sub *redis.PubSub
}

// NewRedisBus builds a bus on an existing client.
func NewRedisBus(rdb *redis.Client, channel string, logger *zap.Logger) (*RedisBus, error) {
	if rdb == nil {
		return nil, errors.New("realtime: redis client required")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{rdb: rdb, channel: channel, logger: logger}, nil
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Start subscribes and forwards messages until ctx is cancelled or Close is called.
func (b *RedisBus) Start(ctx context.Context, deliver func(Envelope)) error {
	if deliver == nil {
		return errors.New("realtime: deliver func required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("realtime: subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Warn("discarding malformed realtime envelope", zap.Error(err))
					continue
				}
				deliver(env)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	b.sub = nil
	return err
}
