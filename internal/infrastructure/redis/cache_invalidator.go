// Package redis implements cross-instance cache invalidation over Redis
// pub/sub. When one instance rotates, every other instance drops its key
// cache instead of waiting out the TTL.
package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/pkg/logger"
)

// Invalidatable is the slice of the key cache the subscriber needs.
type Invalidatable interface {
	Invalidate()
}

// CacheInvalidator publishes rotation events to a Redis channel and, when
// subscribed, drops the local key cache on events published by peers.
type CacheInvalidator struct {
	client  redis.UniversalClient
	channel string
	logger  logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     sync.WaitGroup
}

func NewCacheInvalidator(client redis.UniversalClient, channel string, log logger.Logger) *CacheInvalidator {
	return &CacheInvalidator{
		client:  client,
		channel: channel,
		logger:  log.WithComponent("cache_invalidator"),
		stop:    make(chan struct{}),
	}
}

// PublishInvalidation fans the rotation event out to every subscribed
// instance. Best-effort: the cache TTL remains the correctness backstop.
func (c *CacheInvalidator) PublishInvalidation(ctx context.Context, event models.RotationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.channel, payload).Err(); err != nil {
		c.logger.Error(ctx, "failed to publish cache invalidation", err,
			logger.String("channel", c.channel))
		return err
	}
	return nil
}

// Subscribe starts the listener loop that invalidates the given cache on
// every event received. Non-blocking; Close stops the loop.
func (c *CacheInvalidator) Subscribe(ctx context.Context, target Invalidatable) {
	sub := c.client.Subscribe(ctx, c.channel)
	c.done.Add(1)
	go func() {
		defer c.done.Done()
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.RotationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					c.logger.Error(ctx, "failed to unmarshal invalidation event", err,
						logger.String("payload", msg.Payload))
					continue
				}
				c.logger.Debug(ctx, "invalidating key cache on peer rotation",
					logger.String("event_id", event.EventID),
					logger.String("event_type", string(event.EventType)))
				target.Invalidate()
			}
		}
	}()
}

// Close stops the subscriber loop and waits for it to exit.
func (c *CacheInvalidator) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.done.Wait()
	return nil
}

var _ service.CacheInvalidator = (*CacheInvalidator)(nil)
