// internal/notify/aggregator.go
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"portal-engine/internal/common/logger"
	"portal-engine/internal/common/metrics"
	"portal-engine/internal/common/observability"
	"portal-engine/internal/feed"
	"portal-engine/internal/identity"
	"portal-engine/internal/models"
)

// sources is the fixed, ordered list of collections the aggregator can draw
// from. Iteration order matters: it is part of what makes a pass
// deterministic before sorting.
var sources = []string{
	feed.CollectionAssignments,
	feed.CollectionSlots,
	feed.CollectionThreads,
	feed.CollectionBroadcasts,
	feed.CollectionDocumentAcks,
}

// Sender delivers one urgent item out of band (email, SMS). Implementations
// live in notify/delivery; a nil Sender disables delivery.
type Sender interface {
	Send(ctx context.Context, viewer identity.ViewerContext, item models.NotificationItem) error
}

// Options tunes the aggregator's resubscription behavior and optional
// collaborators.
type Options struct {
	ResubscribeMax   int
	ResubscribeDelay time.Duration
	Sender           Sender
	Observability    *observability.Observability
}

// Aggregator maintains one live, filtered snapshot per source for a single
// viewer and computes the ranked notification list from them. Each source
// delivers independently; a change in one replaces only that source's
// snapshot. Computation is pure in (snapshots, dismissal set): identical
// inputs yield a byte-identical ordered output.
type Aggregator struct {
	bus        feed.Bus
	dismissals DismissalStore
	log        logger.Logger
	opts       Options

	mu        sync.Mutex
	gen       int
	viewer    identity.ViewerContext
	active    bool
	closed    bool
	subs      []feed.Subscription
	stop      chan struct{}
	snapshots map[string][]feed.Record
	delivered map[string]bool
	wg        sync.WaitGroup
}

func NewAggregator(bus feed.Bus, dismissals DismissalStore, log logger.Logger, opts Options) *Aggregator {
	if opts.ResubscribeMax <= 0 {
		opts.ResubscribeMax = 5
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = 500 * time.Millisecond
	}
	return &Aggregator{
		bus:        bus,
		dismissals: dismissals,
		log:        log.WithFields(map[string]interface{}{"component": "aggregator"}),
		opts:       opts,
		snapshots:  make(map[string][]feed.Record),
		delivered:  make(map[string]bool),
	}
}

// SetViewer switches the aggregator to a new viewer. Every subscription of
// the previous viewer is cancelled and its state discarded before the new
// viewer's subscriptions are created, so no stale snapshot can leak across a
// role change or re-login.
func (a *Aggregator) SetViewer(ctx context.Context, viewer identity.ViewerContext) error {
	a.teardown()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	gen := a.gen
	a.viewer = viewer
	a.active = true
	a.stop = make(chan struct{})
	stop := a.stop
	a.snapshots = make(map[string][]feed.Record)
	a.delivered = make(map[string]bool)
	a.mu.Unlock()

	filters := sourceFilters(viewer)
	for _, collection := range sources {
		f, ok := filters[collection]
		if !ok {
			continue
		}
		sub, err := a.bus.Subscribe(ctx, collection, f...)
		if err != nil {
			a.teardown()
			return err
		}

		a.mu.Lock()
		if a.gen != gen {
			a.mu.Unlock()
			sub.Cancel()
			return nil
		}
		a.subs = append(a.subs, sub)
		a.wg.Add(1)
		a.mu.Unlock()

		go a.consume(gen, collection, f, sub, stop)
	}
	return nil
}

// GetNotifications computes the ranked list and counts for the current
// viewer from the current snapshots and dismissal set.
func (a *Aggregator) GetNotifications(ctx context.Context) ([]models.NotificationItem, models.NotificationCounts, error) {
	start := time.Now()

	a.mu.Lock()
	viewer := a.viewer
	active := a.active
	snapshots := a.copySnapshotsLocked()
	a.mu.Unlock()

	counts := models.NotificationCounts{ByKind: make(map[models.NotificationKind]int)}
	if !active {
		return nil, counts, nil
	}

	dismissed, err := a.dismissals.Dismissed(ctx, viewer.Identity)
	if err != nil {
		return nil, counts, err
	}

	items := compute(viewer, snapshots, dismissed)
	counts.Total = len(items)
	for _, item := range items {
		counts.ByKind[item.Kind]++
	}

	metrics.AggregatorPassDuration.WithLabelValues(string(viewer.Role)).Observe(time.Since(start).Seconds())
	for kind := range dismissibleKinds {
		metrics.NotificationsLive.WithLabelValues(string(kind)).Set(float64(counts.ByKind[kind]))
	}
	return items, counts, nil
}

// Dismiss suppresses the item behind sourceKey for the current viewer. Kinds
// representing an outstanding obligation are not dismissible; for those the
// call is a no-op and the item stays in the next computed list.
func (a *Aggregator) Dismiss(ctx context.Context, sourceKey string) error {
	if !Dismissible(KindOfSourceKey(sourceKey)) {
		return nil
	}

	a.mu.Lock()
	viewer := a.viewer
	active := a.active
	a.mu.Unlock()
	if !active {
		return nil
	}
	return a.dismissals.Add(ctx, viewer.Identity, sourceKey)
}

// Close cancels all subscriptions. Idempotent; the aggregator cannot be
// reused afterwards.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.teardown()
}

// ==========================
// Internals
// ==========================

// teardown cancels the current viewer's subscriptions and waits for their
// consumers to finish. Safe to call with nothing active.
func (a *Aggregator) teardown() {
	a.mu.Lock()
	a.gen++
	subs := a.subs
	stop := a.stop
	a.subs = nil
	a.stop = nil
	a.active = false
	a.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	for _, sub := range subs {
		sub.Cancel()
	}
	a.wg.Wait()
}

// consume relays one source's snapshots into the aggregator state. On an
// infrastructure failure it resubscribes with exponential backoff up to the
// configured cap; the other sources are unaffected either way.
func (a *Aggregator) consume(gen int, collection string, filters []feed.Filter, sub feed.Subscription, stop <-chan struct{}) {
	defer a.wg.Done()

	attempts := 0
	updates, errs := sub.Updates(), sub.Errors()
	for {
		select {
		case <-stop:
			sub.Cancel()
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			a.storeSnapshot(gen, snap)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			sub.Cancel()
			if attempts >= a.opts.ResubscribeMax {
				a.log.Error("giving up on feed source", map[string]interface{}{
					"collection": collection,
					"attempts":   attempts,
					"error":      err,
				})
				return
			}

			delay := a.opts.ResubscribeDelay << uint(attempts)
			attempts++
			metrics.FeedResubscribes.WithLabelValues(collection).Inc()
			a.log.Warn("feed source failed, resubscribing", map[string]interface{}{
				"collection": collection,
				"attempt":    attempts,
				"delay":      delay.String(),
				"error":      err,
			})

			select {
			case <-stop:
				return
			case <-time.After(delay):
			}

			next, serr := a.bus.Subscribe(context.Background(), collection, filters...)
			if serr != nil {
				a.log.Error("resubscribe failed", map[string]interface{}{
					"collection": collection,
					"error":      serr,
				})
				return
			}
			sub = next
			updates, errs = sub.Updates(), sub.Errors()
		}
	}
}

// storeSnapshot replaces one source's snapshot, drops it if the viewer has
// changed since the consumer started, and triggers delivery of newly urgent
// items.
func (a *Aggregator) storeSnapshot(gen int, snap feed.Snapshot) {
	start := time.Now()

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.snapshots[snap.Collection] = snap.Records
	viewer := a.viewer
	snapshots := a.copySnapshotsLocked()
	a.mu.Unlock()

	if a.opts.Sender != nil {
		a.deliverUrgent(gen, viewer, snapshots)
	}
	if a.opts.Observability != nil {
		a.opts.Observability.RecordRecompute(context.Background(), snap.Collection, time.Since(start))
	}
}

// deliverUrgent hands each urgent item to the sender once per sourceKey.
// Dismissals are not consulted: an urgent obligation is delivered even if a
// related earlier item was dismissed.
func (a *Aggregator) deliverUrgent(gen int, viewer identity.ViewerContext, snapshots map[string][]feed.Record) {
	items := compute(viewer, snapshots, nil)
	for _, item := range items {
		if !item.Urgent {
			continue
		}

		a.mu.Lock()
		if a.gen != gen || a.delivered[item.SourceKey] {
			a.mu.Unlock()
			continue
		}
		a.delivered[item.SourceKey] = true
		a.mu.Unlock()

		if err := a.opts.Sender.Send(context.Background(), viewer, item); err != nil {
			a.log.Warn("urgent delivery failed", map[string]interface{}{
				"sourceKey": item.SourceKey,
				"error":     err,
			})
		}
	}
}

func (a *Aggregator) copySnapshotsLocked() map[string][]feed.Record {
	out := make(map[string][]feed.Record, len(a.snapshots))
	for k, v := range a.snapshots {
		out[k] = v
	}
	return out
}

// compute is the pure aggregation pass: map each source's records to items,
// drop dismissed keys, sort by urgency, recency and finally sourceKey so the
// order is total.
func compute(viewer identity.ViewerContext, snapshots map[string][]feed.Record, dismissed map[string]bool) []models.NotificationItem {
	var items []models.NotificationItem
	for _, collection := range sources {
		for _, rec := range snapshots[collection] {
			item, ok := mapRecord(collection, rec, viewer)
			if !ok || dismissed[item.SourceKey] {
				continue
			}
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Urgent != items[j].Urgent {
			return items[i].Urgent
		}
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].SourceKey < items[j].SourceKey
	})
	return items
}
