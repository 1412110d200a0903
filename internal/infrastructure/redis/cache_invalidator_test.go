package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/pkg/constants"
	"github.com/crewbill/keysvc/pkg/logger"
)

type countingCache struct {
	invalidations atomic.Int64
}

func (c *countingCache) Invalidate() {
	c.invalidations.Add(1)
}

func TestCacheInvalidatorRoundTrip(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer client.Close()

	ctx := context.Background()
	subscriber := NewCacheInvalidator(client, "keysvc:rotations", logger.NewNoopLogger())
	target := &countingCache{}
	subscriber.Subscribe(ctx, target)
	defer subscriber.Close()

	// Give the subscription a moment to register with the server.
	time.Sleep(50 * time.Millisecond)

	publisher := NewCacheInvalidator(client, "keysvc:rotations", logger.NewNoopLogger())
	event := models.RotationEvent{
		EventID:    "evt-1",
		EventType:  constants.AuditEventKeyRotated,
		NewKeyID:   "key-2",
		OccurredAt: time.Now(),
	}
	require.NoError(t, publisher.PublishInvalidation(ctx, event))

	assert.Eventually(t, func() bool {
		return target.invalidations.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheInvalidatorCloseStopsSubscriber(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	defer srv.Close()

	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer client.Close()

	inv := NewCacheInvalidator(client, "keysvc:rotations", logger.NewNoopLogger())
	inv.Subscribe(context.Background(), &countingCache{})

	done := make(chan struct{})
	go func() {
		require.NoError(t, inv.Close())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("invalidator did not close in time")
	}
}
