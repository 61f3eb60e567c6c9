// Package feed is the live query/subscription primitive of the engine.
// A subscription yields an initial snapshot of a collection followed by a
// cancelable stream of subsequent snapshots. Each source delivers
// independently; no source blocks or is blocked by another, and consumers
// must never infer one source's freshness from another's update.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Collection names published by the stores and the out-of-scope portal CRUD.
const (
	CollectionAssignments  = "assignments"
	CollectionSlots        = "slots"
	CollectionThreads      = "threads"
	CollectionBroadcasts   = "broadcasts"
	CollectionDocumentAcks = "document_acks"
)

// Record is one decoded document of a collection snapshot.
type Record map[string]interface{}

// String returns the record field as a string, or "".
func (r Record) String(field string) string {
	if v, ok := r[field].(string); ok {
		return v
	}
	return ""
}

// Time parses the record field as an RFC3339 timestamp.
func (r Record) Time(field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

// Op is a filter operator.
type Op string

const (
	OpEquals        Op = "equals"
	OpArrayContains Op = "arrayContains"
	OpTimeRange     Op = "timeRange"
)

// Filter restricts a subscription to matching records. The supported shapes
// are equality, "array contains identity" and a timestamp range.
type Filter struct {
	Field string
	Op    Op
	Value string
	From  time.Time
	To    time.Time
}

func Equals(field, value string) Filter {
	return Filter{Field: field, Op: OpEquals, Value: value}
}

func ArrayContains(field, identity string) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: identity}
}

func TimeRange(field string, from, to time.Time) Filter {
	return Filter{Field: field, Op: OpTimeRange, From: from, To: to}
}

// Matches reports whether rec satisfies the filter.
func (f Filter) Matches(rec Record) bool {
	switch f.Op {
	case OpEquals:
		v, ok := rec[f.Field]
		if !ok {
			return false
		}
		return fmt.Sprintf("%v", v) == f.Value

	case OpArrayContains:
		arr, ok := rec[f.Field].([]interface{})
		if !ok {
			return false
		}
		for _, elem := range arr {
			switch e := elem.(type) {
			case string:
				if e == f.Value {
					return true
				}
			case map[string]interface{}:
				// Party-style element keyed by identity.
				if id, ok := e["identity"].(string); ok && id == f.Value {
					return true
				}
			}
		}
		return false

	case OpTimeRange:
		t, ok := rec.Time(f.Field)
		if !ok {
			return false
		}
		if !f.From.IsZero() && t.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && t.After(f.To) {
			return false
		}
		return true
	}
	return false
}

// Snapshot is one full filtered view of a collection at a point in time.
type Snapshot struct {
	Collection string
	Records    []Record
}

// Subscription is a cancelable stream of snapshots. Cancel is idempotent;
// after Cancel no further snapshot is delivered. Errors carries at most one
// infrastructure failure, after which Updates is closed.
type Subscription interface {
	Updates() <-chan Snapshot
	Errors() <-chan error
	Cancel()
}

// Bus connects publishers (the stores) to subscribers (the aggregator).
type Bus interface {
	Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error)
	Publish(ctx context.Context, collection string, records []Record) error
}

// RecordsFrom converts a slice of typed documents into feed records via
// their JSON form, so snapshots carry exactly what clients would see.
func RecordsFrom(v interface{}) ([]Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	return records, nil
}

func applyFilters(records []Record, filters []Filter) []Record {
	if len(filters) == 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		matched := true
		for _, f := range filters {
			if !f.Matches(rec) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, rec)
		}
	}
	return out
}
