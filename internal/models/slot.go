// internal/models/slot.go
package models

import "time"

// SlotStatus is the lifecycle status of a reservation slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBlocked   SlotStatus = "blocked"
	SlotReserved  SlotStatus = "reserved"
	SlotAttended  SlotStatus = "attended"
	SlotCancelled SlotStatus = "cancelled"
)

// ReservationSlot is a single-instant bookable resource owned by at most one
// requester. Only available slots may be booked; attended and cancelled are
// terminal for the instant.
type ReservationSlot struct {
	ID        string     `json:"id"`
	Instant   time.Time  `json:"instant"`
	Status    SlotStatus `json:"status"`
	Requester string     `json:"requesterIdentity,omitempty"`
	Note      string     `json:"note,omitempty"`

	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	LastTransitionAt time.Time `json:"lastTransitionAt"`
}
