// internal/assignment/status.go
package assignment

import "portal-engine/internal/models"

// DeriveStatus is the single priority-ordered normalization of a duty
// assignment's flags into its status. Every write path recomputes through
// this function; nothing else assigns Status, so concurrent writers cannot
// leave a record in a status inconsistent with its flags.
//
// Priority: suspended > cancelled > changeRequested > completed >
// confirmed > pending.
func DeriveStatus(a *models.DutyAssignment) models.AssignmentStatus {
	switch {
	case a.Suspended:
		return models.AssignmentSuspended
	case a.Cancelled:
		return models.AssignmentCancelled
	case a.ChangeRequested:
		return models.AssignmentChangeRequested
	case a.Completed:
		return models.AssignmentCompleted
	case a.ConfirmedByAny():
		return models.AssignmentConfirmed
	default:
		return models.AssignmentPending
	}
}

// normalize recomputes the derived status in place and returns the
// assignment for chaining.
func normalize(a *models.DutyAssignment) *models.DutyAssignment {
	a.Status = DeriveStatus(a)
	return a
}
