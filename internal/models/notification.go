// internal/models/notification.go
package models

import "time"

// NotificationKind classifies an aggregated notification item.
type NotificationKind string

const (
	KindDutyAssigned     NotificationKind = "duty_assigned"
	KindDutySuspended    NotificationKind = "duty_suspended"
	KindSlotReserved     NotificationKind = "slot_reserved"
	KindMessageUnread    NotificationKind = "message_unread"
	KindBroadcastPending NotificationKind = "broadcast_pending"
	KindDocumentPending  NotificationKind = "document_pending"
)

// NotificationItem is one entry of the aggregated per-viewer list. It is
// derived on every aggregation pass and never persisted. SourceKey is stable
// across benign field updates of the underlying record: it changes only when
// the record goes through a meaningful transition.
type NotificationItem struct {
	Kind         NotificationKind `json:"kind"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	Timestamp    time.Time        `json:"timestamp"`
	Urgent       bool             `json:"urgent"`
	ActionTarget string           `json:"actionTarget"`
	SourceKey    string           `json:"sourceKey"`
}

// NotificationCounts summarizes the aggregated list.
type NotificationCounts struct {
	Total  int                      `json:"total"`
	ByKind map[NotificationKind]int `json:"byKind"`
}
