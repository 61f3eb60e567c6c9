// internal/assignment/slots.go
package assignment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/common/validation"
	"portal-engine/internal/models"
)

// SlotSpec describes one batch of reservation slots to enumerate: for every
// date in [From, To) falling on Weekday, walk from Start to End in steps of
// duration+gap, emitting one slot per step that fits entirely before End.
type SlotSpec struct {
	Weekday         string `json:"weekday"`
	From            string `json:"from"` // "2025-01-06"
	To              string `json:"to"`
	Start           string `json:"start"` // "09:00"
	End             string `json:"end"`
	DurationMinutes int    `json:"durationMinutes"`
	GapMinutes      int    `json:"gapMinutes"`
}

var weekdays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// GenerateSlots deterministically enumerates the non-overlapping slots a
// spec describes. The walk is pure: identical specs yield identical
// instants in identical order. Slot IDs are fresh per call.
func GenerateSlots(spec SlotSpec, now time.Time) ([]models.ReservationSlot, error) {
	if err := validation.ValidateSlotSpec(spec); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	weekday := weekdays[spec.Weekday]

	from, err := time.Parse("2006-01-02", spec.From)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("from: %v", err))
	}
	to, err := time.Parse("2006-01-02", spec.To)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("to: %v", err))
	}
	if !to.After(from) {
		return nil, apperrors.NewValidationError("to does not follow from")
	}

	startMin, err := minutesOfDay(spec.Start)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("start: %v", err))
	}
	endMin, err := minutesOfDay(spec.End)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("end: %v", err))
	}
	if endMin <= startMin {
		return nil, apperrors.NewValidationError("end does not follow start")
	}

	step := spec.DurationMinutes + spec.GapMinutes

	var slots []models.ReservationSlot
	for date := from; date.Before(to); date = date.AddDate(0, 0, 1) {
		if date.Weekday() != weekday {
			continue
		}
		for m := startMin; m+spec.DurationMinutes <= endMin; m += step {
			instant := date.Add(time.Duration(m) * time.Minute)
			slots = append(slots, models.ReservationSlot{
				ID:               uuid.NewString(),
				Instant:          instant,
				Status:           models.SlotAvailable,
				CreatedAt:        now,
				UpdatedAt:        now,
				LastTransitionAt: now,
			})
		}
	}
	return slots, nil
}

func minutesOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
