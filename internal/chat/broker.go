package chat

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Broker carries room fanout frames between server instances. Every send is
// published; fanout to local connections happens on receipt, so all instances
// (including the publisher's own) deliver identically.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) <-chan []byte
}

const fanoutChannel = "campuschat-fanout"

// RedisBroker bridges fanout frames over a redis pub/sub channel.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, fanoutChannel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) <-chan []byte {
	pubsub := b.client.Subscribe(ctx, fanoutChannel)
	out := make(chan []byte)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- []byte(msg.Payload)
			}
		}
	}()
	return out
}

// LoopbackBroker echoes published frames back in-process. Used for
// single-instance deployments and tests.
type LoopbackBroker struct {
	ch chan []byte
}

func NewLoopbackBroker() *LoopbackBroker {
	return &LoopbackBroker{ch: make(chan []byte, 64)}
}

func (b *LoopbackBroker) Publish(ctx context.Context, payload []byte) error {
	select {
	case b.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LoopbackBroker) Subscribe(ctx context.Context) <-chan []byte {
	return b.ch
}
