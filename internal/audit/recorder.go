// Package audit records accepted lifecycle transitions for later review.
// Recording is fire-and-forget: a failed write is logged and never blocks
// or fails the transition that produced it.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"portal-engine/internal/common/logger"
)

// TransitionEvent is one accepted state change on a lifecycle record.
type TransitionEvent struct {
	Collection string    `json:"collection"`
	RecordID   string    `json:"recordId"`
	Action     string    `json:"action"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

type Recorder interface {
	RecordTransition(ctx context.Context, ev TransitionEvent)
}

// ESRecorder indexes transition events into Elasticsearch.
type ESRecorder struct {
	client *elasticsearch.Client
	index  string
	log    logger.Logger
}

func NewESRecorder(client *elasticsearch.Client, index string, log logger.Logger) *ESRecorder {
	return &ESRecorder{
		client: client,
		index:  index,
		log:    log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

func (r *ESRecorder) RecordTransition(ctx context.Context, ev TransitionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("failed to marshal transition event", map[string]interface{}{"error": err})
		return
	}

	res, err := r.client.Index(
		r.index,
		bytes.NewReader(payload),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(uuid.NewString()),
	)
	if err != nil {
		r.log.Warn("failed to index transition event", map[string]interface{}{
			"collection": ev.Collection,
			"recordId":   ev.RecordID,
			"error":      err,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		r.log.Warn("transition event rejected by elasticsearch", map[string]interface{}{
			"collection": ev.Collection,
			"recordId":   ev.RecordID,
			"status":     res.Status(),
		})
	}
}

// NopRecorder discards every event. Used when the audit trail is disabled.
type NopRecorder struct{}

func (NopRecorder) RecordTransition(ctx context.Context, ev TransitionEvent) {}
