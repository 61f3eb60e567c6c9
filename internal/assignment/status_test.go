// internal/assignment/status_test.go
package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"portal-engine/internal/models"
)

func TestDeriveStatus_PriorityOrder(t *testing.T) {
	confirmedParty := []models.ResponsibleParty{{Identity: "fam-1", Confirmed: true}}

	tests := []struct {
		name     string
		a        models.DutyAssignment
		expected models.AssignmentStatus
	}{
		{
			name:     "no flags set",
			a:        models.DutyAssignment{},
			expected: models.AssignmentPending,
		},
		{
			name:     "one party confirmed",
			a:        models.DutyAssignment{Parties: confirmedParty},
			expected: models.AssignmentConfirmed,
		},
		{
			name:     "completed outranks confirmed",
			a:        models.DutyAssignment{Completed: true, Parties: confirmedParty},
			expected: models.AssignmentCompleted,
		},
		{
			name:     "change request outranks completed",
			a:        models.DutyAssignment{ChangeRequested: true, Completed: true, Parties: confirmedParty},
			expected: models.AssignmentChangeRequested,
		},
		{
			name:     "cancellation outranks change request",
			a:        models.DutyAssignment{Cancelled: true, ChangeRequested: true, Completed: true},
			expected: models.AssignmentCancelled,
		},
		{
			name: "suspension outranks everything",
			a: models.DutyAssignment{
				Suspended:       true,
				Cancelled:       true,
				ChangeRequested: true,
				Completed:       true,
				Parties:         confirmedParty,
			},
			expected: models.AssignmentSuspended,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveStatus(&tt.a))
		})
	}
}

func TestDeriveStatus_Pure(t *testing.T) {
	a := models.DutyAssignment{
		ChangeRequested: true,
		Parties:         []models.ResponsibleParty{{Identity: "fam-1", Confirmed: true}},
	}

	first := DeriveStatus(&a)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveStatus(&a))
	}
}

func TestDeriveStatus_AnyPartyConfirms(t *testing.T) {
	a := models.DutyAssignment{
		Parties: []models.ResponsibleParty{
			{Identity: "fam-1", Confirmed: false},
			{Identity: "fam-2", Confirmed: true},
			{Identity: "fam-3", Confirmed: false},
		},
	}

	assert.Equal(t, models.AssignmentConfirmed, DeriveStatus(&a))
}
