package wsx

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements MessageBroker over Redis pub/sub, letting several
// hub instances (one per process) fan the same message out to the
// connections local to each. The client is built by the caller, typically
// via store/redisx so pub/sub traffic shares the instrumented client.
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	mu     sync.Mutex
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client: client,
	}
}

// Subscribe attaches handler to channel. One pubsub connection is shared
// across channels; the listening goroutine filters by channel name.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler func(msg []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub == nil {
		b.pubsub = b.client.Subscribe(ctx, channel)
	} else {
		if err := b.pubsub.Subscribe(ctx, channel); err != nil {
			return err
		}
	}

	go func() {
		ch := b.pubsub.Channel()
		for msg := range ch {
			if msg.Channel == channel {
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, msg []byte) error {
	return b.client.Publish(ctx, channel, msg).Err()
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	return b.client.Close()
}
