// internal/feed/redis_test.go
package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-engine/internal/common/logger"
)

func newTestRedisBus(t *testing.T) *RedisBus {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisBus(rdb, logger.NewTestLogger(t))
}

func waitSnapshot(t *testing.T, sub Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		require.True(t, ok, "updates channel closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestRedisBus_InitialSnapshotFromState(t *testing.T) {
	bus := newTestRedisBus(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, CollectionAssignments, []Record{{"id": "a-1"}}))

	sub, err := bus.Subscribe(ctx, CollectionAssignments)
	require.NoError(t, err)
	defer sub.Cancel()

	snap := waitSnapshot(t, sub)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "a-1", snap.Records[0].String("id"))
}

func TestRedisBus_EmptyInitialSnapshotBeforeFirstPublish(t *testing.T) {
	bus := newTestRedisBus(t)

	sub, err := bus.Subscribe(context.Background(), CollectionAssignments)
	require.NoError(t, err)
	defer sub.Cancel()

	snap := waitSnapshot(t, sub)
	assert.Empty(t, snap.Records)
}

func TestRedisBus_PublishRelaysToSubscriber(t *testing.T) {
	bus := newTestRedisBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, CollectionSlots)
	require.NoError(t, err)
	defer sub.Cancel()
	waitSnapshot(t, sub) // initial

	require.NoError(t, bus.Publish(ctx, CollectionSlots, []Record{{"id": "s-1"}, {"id": "s-2"}}))

	snap := waitSnapshot(t, sub)
	assert.Len(t, snap.Records, 2)
}

func TestRedisBus_FiltersApplyToRelayedSnapshots(t *testing.T) {
	bus := newTestRedisBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, CollectionSlots, Equals("requesterIdentity", "fam-a"))
	require.NoError(t, err)
	defer sub.Cancel()
	waitSnapshot(t, sub)

	require.NoError(t, bus.Publish(ctx, CollectionSlots, []Record{
		{"id": "s-1", "requesterIdentity": "fam-a"},
		{"id": "s-2", "requesterIdentity": "fam-b"},
	}))

	snap := waitSnapshot(t, sub)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "s-1", snap.Records[0].String("id"))
}

func TestRedisBus_CancelStopsDelivery(t *testing.T) {
	bus := newTestRedisBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, CollectionSlots)
	require.NoError(t, err)
	waitSnapshot(t, sub)

	sub.Cancel()
	sub.Cancel() // idempotent

	require.NoError(t, bus.Publish(ctx, CollectionSlots, []Record{{"id": "s-1"}}))

	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return // channel drained and closed
			}
		case <-deadline:
			return
		}
	}
}
