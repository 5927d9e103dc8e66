package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the Redis pub/sub channel carrying snapshot
// invalidations between instances. Messages are bare organization ids.
const InvalidationChannel = "taskforge:hierarchy:invalidations"

// InvalidationBus broadcasts and receives snapshot invalidations over
// Redis pub/sub. Delivery is best effort; the snapshot TTL bounds how
// long a missed message can leave a peer stale.
type InvalidationBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewInvalidationBus wraps the Redis client.
func NewInvalidationBus(client *redis.Client, logger *slog.Logger) *InvalidationBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvalidationBus{client: client, logger: logger}
}

// Publish broadcasts an invalidation for the organization.
func (b *InvalidationBus) Publish(ctx context.Context, orgID uuid.UUID) error {
	if err := b.client.Publish(ctx, InvalidationChannel, orgID.String()).Err(); err != nil {
		return fmt.Errorf("engine: publish invalidation: %w", err)
	}
	return nil
}

// Subscribe delivers peer invalidations to fn until ctx is cancelled.
// It blocks; run it on its own goroutine. Malformed messages are logged
// and skipped.
func (b *InvalidationBus) Subscribe(ctx context.Context, fn func(orgID uuid.UUID)) error {
	sub := b.client.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("engine: invalidation subscription closed")
			}
			orgID, err := uuid.Parse(msg.Payload)
			if err != nil {
				b.logger.Warn("discarding malformed invalidation message", slog.String("payload", msg.Payload))
				continue
			}
			fn(orgID)
		}
	}
}
