// internal/notify/dismissal.go
package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	apperrors "portal-engine/internal/common/errors"
)

// DismissalStore persists the per-viewer set of dismissed source keys. The
// aggregator only reads it during a pass and appends to it on Dismiss; a
// server-side store can replace the Redis one without touching the aggregator.
type DismissalStore interface {
	Dismissed(ctx context.Context, viewer string) (map[string]bool, error)
	Add(ctx context.Context, viewer, sourceKey string) error
}

// RedisDismissalStore keeps each viewer's dismissals in a Redis set.
type RedisDismissalStore struct {
	client *redis.Client
}

func NewRedisDismissalStore(client *redis.Client) *RedisDismissalStore {
	return &RedisDismissalStore{client: client}
}

func dismissalKey(viewer string) string {
	return "dismissals:" + viewer
}

func (s *RedisDismissalStore) Dismissed(ctx context.Context, viewer string) (map[string]bool, error) {
	keys, err := s.client.SMembers(ctx, dismissalKey(viewer)).Result()
	if err != nil {
		return nil, apperrors.NewInfrastructureError("read dismissals", err)
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

func (s *RedisDismissalStore) Add(ctx context.Context, viewer, sourceKey string) error {
	if err := s.client.SAdd(ctx, dismissalKey(viewer), sourceKey).Err(); err != nil {
		return apperrors.NewInfrastructureError("add dismissal", err)
	}
	return nil
}

// MemoryDismissalStore is the in-process DismissalStore used by tests.
type MemoryDismissalStore struct {
	mu   sync.Mutex
	sets map[string]map[string]bool
}

func NewMemoryDismissalStore() *MemoryDismissalStore {
	return &MemoryDismissalStore{sets: make(map[string]map[string]bool)}
}

func (s *MemoryDismissalStore) Dismissed(ctx context.Context, viewer string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.sets[viewer]))
	for k := range s.sets[viewer] {
		out[k] = true
	}
	return out, nil
}

func (s *MemoryDismissalStore) Add(ctx context.Context, viewer, sourceKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[viewer] == nil {
		s.sets[viewer] = make(map[string]bool)
	}
	s.sets[viewer][sourceKey] = true
	return nil
}
