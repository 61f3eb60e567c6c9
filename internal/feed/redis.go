// internal/feed/redis.go
package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/common/logger"
)

// RedisBus implements Bus over Redis: the latest collection snapshot lives
// under feed:{collection}:state for the initial delivery, and every publish
// is relayed over the feed:{collection} pub/sub channel.
type RedisBus struct {
	rdb *redis.Client
	log logger.Logger
}

func NewRedisBus(rdb *redis.Client, log logger.Logger) *RedisBus {
	return &RedisBus{
		rdb: rdb,
		log: log.WithFields(map[string]interface{}{"component": "feed"}),
	}
}

func stateKey(collection string) string   { return "feed:" + collection + ":state" }
func channelKey(collection string) string { return "feed:" + collection }

// Publish stores the snapshot and notifies subscribers. The state write and
// the notify are one pipeline so a subscriber can never observe the channel
// message without the state that produced it.
func (b *RedisBus) Publish(ctx context.Context, collection string, records []Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return apperrors.NewInfrastructureError("feed publish", err)
	}

	pipe := b.rdb.Pipeline()
	pipe.Set(ctx, stateKey(collection), payload, 0)
	pipe.Publish(ctx, channelKey(collection), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewInfrastructureError("feed publish", err)
	}
	return nil
}

// Subscribe registers on the pub/sub channel first and reads the stored
// state second, so a publish landing in between is not lost.
func (b *RedisBus) Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channelKey(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, apperrors.NewInfrastructureError("feed subscribe", err)
	}

	var initial []Record
	val, err := b.rdb.Get(ctx, stateKey(collection)).Result()
	switch {
	case err == redis.Nil:
		// No snapshot published yet; the initial view is empty.
	case err != nil:
		_ = pubsub.Close()
		return nil, apperrors.NewInfrastructureError("feed subscribe", err)
	default:
		if err := json.Unmarshal([]byte(val), &initial); err != nil {
			_ = pubsub.Close()
			return nil, apperrors.NewInfrastructureError("feed subscribe", err)
		}
	}

	sub := &redisSubscription{
		collection: collection,
		filters:    filters,
		pubsub:     pubsub,
		updates:    make(chan Snapshot, 8),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
	}

	sub.updates <- Snapshot{Collection: collection, Records: applyFilters(initial, filters)}

	go sub.relay(b.log)

	return sub, nil
}

type redisSubscription struct {
	collection string
	filters    []Filter
	pubsub     *redis.PubSub
	updates    chan Snapshot
	errs       chan error
	done       chan struct{}
	cancelOnce sync.Once
}

func (s *redisSubscription) relay(log logger.Logger) {
	defer close(s.updates)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				// The pub/sub connection dropped. Canceled subscriptions
				// close this channel too; only a live one reports it.
				select {
				case <-s.done:
				default:
					s.errs <- apperrors.NewInfrastructureError("feed stream", errStreamClosed)
				}
				return
			}

			var records []Record
			if err := json.Unmarshal([]byte(msg.Payload), &records); err != nil {
				log.Warn("dropping malformed feed payload", map[string]interface{}{
					"collection": s.collection,
					"error":      err,
				})
				continue
			}

			snap := Snapshot{Collection: s.collection, Records: applyFilters(records, s.filters)}
			select {
			case s.updates <- snap:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Updates() <-chan Snapshot { return s.updates }
func (s *redisSubscription) Errors() <-chan error     { return s.errs }

func (s *redisSubscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}

type streamClosedError struct{}

func (streamClosedError) Error() string { return "subscription stream closed" }

var errStreamClosed = streamClosedError{}
