// internal/models/assignment.go
package models

import "time"

// AssignmentStatus is the derived lifecycle status of a duty assignment.
// It is produced only by assignment.DeriveStatus; nothing else writes it.
type AssignmentStatus string

const (
	AssignmentPending         AssignmentStatus = "pending"
	AssignmentConfirmed       AssignmentStatus = "confirmed"
	AssignmentCompleted       AssignmentStatus = "completed"
	AssignmentChangeRequested AssignmentStatus = "changeRequested"
	AssignmentCancelled       AssignmentStatus = "cancelled"
	AssignmentSuspended       AssignmentStatus = "suspended"
)

// ResponsibleParty is one member of the group jointly owning a duty assignment.
// Confirmed is informational per party; any single confirmation satisfies the
// whole assignment.
type ResponsibleParty struct {
	Identity    string     `json:"identity"`
	DisplayName string     `json:"displayName"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// DutyAssignment is a scheduled obligation for a period, owned jointly by one
// or more responsible parties. The boolean flags below are the source of
// truth; Status is recomputed from them on every write.
type DutyAssignment struct {
	ID          string             `json:"id"`
	PeriodStart time.Time          `json:"periodStart"`
	PeriodEnd   time.Time          `json:"periodEnd"`
	Parties     []ResponsibleParty `json:"responsibleParties"`

	Completed           bool   `json:"completed"`
	ChangeRequested     bool   `json:"changeRequested"`
	ChangeRequestReason string `json:"changeRequestReason,omitempty"`
	Cancelled           bool   `json:"cancelled"`
	CancellationReason  string `json:"cancellationReason,omitempty"`
	Suspended           bool   `json:"suspended"`
	SuspensionReason    string `json:"suspensionReason,omitempty"`

	Status AssignmentStatus `json:"status"`

	AssignedAt       time.Time `json:"assignedAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	LastTransitionAt time.Time `json:"lastTransitionAt"`
}

// ConfirmedByAny reports whether at least one responsible party has confirmed.
func (a *DutyAssignment) ConfirmedByAny() bool {
	for _, p := range a.Parties {
		if p.Confirmed {
			return true
		}
	}
	return false
}

// HasParty reports whether identity is one of the responsible parties.
func (a *DutyAssignment) HasParty(identity string) bool {
	for _, p := range a.Parties {
		if p.Identity == identity {
			return true
		}
	}
	return false
}
