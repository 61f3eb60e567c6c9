// internal/notify/policy.go
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"portal-engine/internal/feed"
	"portal-engine/internal/identity"
	"portal-engine/internal/models"
)

// dismissibleKinds is the fixed dismissal policy. Kinds representing a
// resolved-looking one-time event may be suppressed by the viewer; kinds
// representing an outstanding obligation may not, because the underlying
// condition still needs an action.
var dismissibleKinds = map[models.NotificationKind]bool{
	models.KindDutyAssigned:     true,
	models.KindDutySuspended:    true,
	models.KindSlotReserved:     true,
	models.KindMessageUnread:    false,
	models.KindBroadcastPending: false,
	models.KindDocumentPending:  false,
}

// Dismissible reports whether the policy allows dismissing the given kind.
func Dismissible(kind models.NotificationKind) bool {
	return dismissibleKinds[kind]
}

// KindOfSourceKey extracts the kind prefix of a sourceKey.
func KindOfSourceKey(sourceKey string) models.NotificationKind {
	if i := strings.Index(sourceKey, ":"); i > 0 {
		return models.NotificationKind(sourceKey[:i])
	}
	return ""
}

// sourceKey builds the stable dedup key of an item. It changes only when the
// underlying record goes through a meaningful transition, so a benign field
// update never spawns a duplicate and an existing dismissal stays valid.
func sourceKey(kind models.NotificationKind, id string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", kind, id, at.Unix())
}

// sourceFilters returns the per-collection subscription filters scoping each
// source to one viewer. A collection absent from the result is not a source
// for this viewer's role at all.
func sourceFilters(viewer identity.ViewerContext) map[string][]feed.Filter {
	cap := identity.CapabilityFor(viewer.Role)
	out := make(map[string][]feed.Filter, 5)

	if cap.ReceivesDutyAssignments {
		out[feed.CollectionAssignments] = []feed.Filter{
			feed.ArrayContains("responsibleParties", viewer.Identity),
		}
	}
	if cap.BooksReservationSlots {
		out[feed.CollectionSlots] = []feed.Filter{
			feed.Equals("requesterIdentity", viewer.Identity),
		}
	}

	switch cap.ThreadRouting {
	case identity.RouteByTargetArea:
		out[feed.CollectionThreads] = []feed.Filter{
			feed.Equals("targetArea", viewer.Area),
		}
	default:
		out[feed.CollectionThreads] = []feed.Filter{
			feed.Equals("subjectParty", viewer.Identity),
		}
	}

	out[feed.CollectionBroadcasts] = []feed.Filter{
		feed.ArrayContains("recipients", viewer.Identity),
	}

	if cap.ReceivesDocumentAcks {
		out[feed.CollectionDocumentAcks] = []feed.Filter{
			feed.Equals("viewerIdentity", viewer.Identity),
		}
	}
	return out
}

// mapRecord turns one record of a collection snapshot into zero or one
// notification item for the viewer.
func mapRecord(collection string, rec feed.Record, viewer identity.ViewerContext) (models.NotificationItem, bool) {
	switch collection {
	case feed.CollectionAssignments:
		return mapAssignment(rec)
	case feed.CollectionSlots:
		return mapSlot(rec)
	case feed.CollectionThreads:
		return mapThread(rec, viewer)
	case feed.CollectionBroadcasts:
		return mapBroadcast(rec, viewer)
	case feed.CollectionDocumentAcks:
		return mapDocumentAck(rec)
	}
	return models.NotificationItem{}, false
}

func mapAssignment(rec feed.Record) (models.NotificationItem, bool) {
	var a models.DutyAssignment
	if err := decodeRecord(rec, &a); err != nil {
		return models.NotificationItem{}, false
	}

	switch a.Status {
	case models.AssignmentSuspended:
		return models.NotificationItem{
			Kind:         models.KindDutySuspended,
			Title:        "Duty suspended",
			Message:      suspensionMessage(&a),
			Timestamp:    a.LastTransitionAt,
			Urgent:       true,
			ActionTarget: "/assignments/" + a.ID,
			SourceKey:    sourceKey(models.KindDutySuspended, a.ID, a.LastTransitionAt),
		}, true
	case models.AssignmentPending:
		return models.NotificationItem{
			Kind:         models.KindDutyAssigned,
			Title:        "New duty assigned",
			Message:      fmt.Sprintf("You are responsible from %s to %s", a.PeriodStart.Format("2006-01-02"), a.PeriodEnd.Format("2006-01-02")),
			Timestamp:    a.LastTransitionAt,
			ActionTarget: "/assignments/" + a.ID,
			SourceKey:    sourceKey(models.KindDutyAssigned, a.ID, a.LastTransitionAt),
		}, true
	}
	return models.NotificationItem{}, false
}

func suspensionMessage(a *models.DutyAssignment) string {
	if a.SuspensionReason != "" {
		return "Duty for " + a.PeriodStart.Format("2006-01-02") + " suspended: " + a.SuspensionReason
	}
	return "Duty for " + a.PeriodStart.Format("2006-01-02") + " has been suspended"
}

func mapSlot(rec feed.Record) (models.NotificationItem, bool) {
	var s models.ReservationSlot
	if err := decodeRecord(rec, &s); err != nil {
		return models.NotificationItem{}, false
	}
	if s.Status != models.SlotReserved {
		return models.NotificationItem{}, false
	}
	return models.NotificationItem{
		Kind:         models.KindSlotReserved,
		Title:        "Reservation confirmed",
		Message:      "Your reservation for " + s.Instant.Format("2006-01-02 15:04") + " is confirmed",
		Timestamp:    s.LastTransitionAt,
		ActionTarget: "/slots/" + s.ID,
		SourceKey:    sourceKey(models.KindSlotReserved, s.ID, s.LastTransitionAt),
	}, true
}

func mapThread(rec feed.Record, viewer identity.ViewerContext) (models.NotificationItem, bool) {
	var t models.ConversationThread
	if err := decodeRecord(rec, &t); err != nil {
		return models.NotificationItem{}, false
	}
	if t.Closed {
		return models.NotificationItem{}, false
	}

	side := models.SideExternal
	if identity.CapabilityFor(viewer.Role).ThreadRouting == identity.RouteByTargetArea {
		side = models.SideInternal
	}
	unread := t.Unread(side)
	if unread == 0 {
		return models.NotificationItem{}, false
	}

	msg := t.LastMessagePreview
	if unread > 1 {
		msg = fmt.Sprintf("%d unread messages", unread)
	}
	return models.NotificationItem{
		Kind:         models.KindMessageUnread,
		Title:        "Unread message",
		Message:      msg,
		Timestamp:    t.LastMessageAt,
		ActionTarget: "/threads/" + t.ID,
		SourceKey:    sourceKey(models.KindMessageUnread, t.ID, t.LastTransitionAt),
	}, true
}

func mapBroadcast(rec feed.Record, viewer identity.ViewerContext) (models.NotificationItem, bool) {
	var b models.Broadcast
	if err := decodeRecord(rec, &b); err != nil {
		return models.NotificationItem{}, false
	}
	if b.IsAcknowledgedBy(viewer.Identity) {
		return models.NotificationItem{}, false
	}
	// Administrative roles manage group broadcasts elsewhere; only the
	// individually addressed ones surface in their feed.
	if identity.CapabilityFor(viewer.Role).IndividualBroadcastsOnly && b.Audience != models.AudienceIndividual {
		return models.NotificationItem{}, false
	}
	return models.NotificationItem{
		Kind:         models.KindBroadcastPending,
		Title:        b.Title,
		Message:      b.Body,
		Timestamp:    b.SentAt,
		Urgent:       b.Mandatory,
		ActionTarget: "/broadcasts/" + b.ID,
		SourceKey:    sourceKey(models.KindBroadcastPending, b.ID, b.SentAt),
	}, true
}

func mapDocumentAck(rec feed.Record) (models.NotificationItem, bool) {
	var d models.DocumentAck
	if err := decodeRecord(rec, &d); err != nil {
		return models.NotificationItem{}, false
	}
	if d.Acknowledged {
		return models.NotificationItem{}, false
	}
	return models.NotificationItem{
		Kind:         models.KindDocumentPending,
		Title:        "Document requires acknowledgement",
		Message:      d.Title,
		Timestamp:    d.RequestedAt,
		ActionTarget: "/documents/" + d.DocumentID,
		SourceKey:    sourceKey(models.KindDocumentPending, d.ID, d.RequestedAt),
	}, true
}

func decodeRecord(rec feed.Record, v interface{}) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
