// internal/feed/memory.go
package feed

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus with the same delivery semantics as the
// Redis one. Used by unit tests and available for single-node deployments.
type MemoryBus struct {
	mu     sync.Mutex
	latest map[string][]Record
	subs   map[string][]*memorySubscription
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		latest: make(map[string][]Record),
		subs:   make(map[string][]*memorySubscription),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, collection string, records []Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := make([]Record, len(records))
	copy(stored, records)
	b.latest[collection] = stored

	for _, sub := range b.subs[collection] {
		sub.deliver(Snapshot{Collection: collection, Records: applyFilters(stored, sub.filters)})
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memorySubscription{
		bus:        b,
		collection: collection,
		filters:    filters,
		updates:    make(chan Snapshot, 16),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
	}
	b.subs[collection] = append(b.subs[collection], sub)

	sub.deliver(Snapshot{Collection: collection, Records: applyFilters(b.latest[collection], filters)})
	return sub, nil
}

// Fail simulates an infrastructure failure on every live subscription of
// the collection. Test helper.
func (b *MemoryBus) Fail(collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[collection] {
		select {
		case sub.errs <- err:
		default:
		}
	}
	b.subs[collection] = nil
}

type memorySubscription struct {
	bus        *MemoryBus
	collection string
	filters    []Filter
	updates    chan Snapshot
	errs       chan error
	done       chan struct{}
	cancelOnce sync.Once
}

func (s *memorySubscription) deliver(snap Snapshot) {
	select {
	case <-s.done:
	case s.updates <- snap:
	default:
		// Consumer is far behind; drop the oldest snapshot in favor of the
		// newer one. Only the latest view matters to the aggregator.
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- snap:
		default:
		}
	}
}

func (s *memorySubscription) Updates() <-chan Snapshot { return s.updates }
func (s *memorySubscription) Errors() <-chan error     { return s.errs }

func (s *memorySubscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)

		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		list := s.bus.subs[s.collection]
		for i, sub := range list {
			if sub == s {
				s.bus.subs[s.collection] = append(list[:i], list[i+1:]...)
				break
			}
		}
	})
}
