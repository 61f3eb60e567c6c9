// internal/models/broadcast.go
package models

import "time"

// BroadcastAudience distinguishes individually addressed broadcasts from
// group-wide ones. Group broadcasts are managed outside the aggregator feed.
type BroadcastAudience string

const (
	AudienceIndividual BroadcastAudience = "individual"
	AudienceGroup      BroadcastAudience = "group"
)

// Broadcast is an announcement requiring acknowledgement from its recipients.
// Created and acknowledged by the portal's CRUD surface; the engine only
// consumes it as a feed source.
type Broadcast struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Body           string            `json:"body,omitempty"`
	Audience       BroadcastAudience `json:"audience"`
	Mandatory      bool              `json:"mandatory"`
	Recipients     []string          `json:"recipients"`
	AcknowledgedBy []string          `json:"acknowledgedBy,omitempty"`
	SentAt         time.Time         `json:"sentAt"`
}

// AcknowledgedBy reports whether identity already acknowledged the broadcast.
func (b *Broadcast) IsAcknowledgedBy(identity string) bool {
	for _, id := range b.AcknowledgedBy {
		if id == identity {
			return true
		}
	}
	return false
}

// DocumentAck is a pending request for a viewer to acknowledge a document.
type DocumentAck struct {
	ID             string     `json:"id"`
	DocumentID     string     `json:"documentId"`
	Title          string     `json:"title"`
	ViewerIdentity string     `json:"viewerIdentity"`
	RequestedAt    time.Time  `json:"requestedAt"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}
