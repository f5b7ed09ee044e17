package fanout

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/collab/internal/models"
)

const redisChannelPrefix = "collab:tenant:"

// RedisBus relays envelopes over Redis pub/sub, one channel per tenant.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a bus on an existing client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish sends payload on the tenant's channel.
func (b *RedisBus) Publish(ctx context.Context, tenantID models.TenantID, payload []byte) error {
	return b.client.Publish(ctx, redisChannelPrefix+string(tenantID), payload).Err()
}

// Run subscribes to every tenant channel until ctx is done.
func (b *RedisBus) Run(ctx context.Context, handle func(payload []byte)) error {
	ps := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer ps.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle([]byte(msg.Payload))
		}
	}
}

// Close is a no-op; the client belongs to the store.
func (b *RedisBus) Close() error {
	return nil
}
