// internal/assignment/store.go
package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"portal-engine/internal/audit"
	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/common/logger"
	"portal-engine/internal/common/metrics"
	"portal-engine/internal/feed"
	"portal-engine/internal/models"
)

// Store owns duty assignments and reservation slots: the transition rules,
// the guards, and the change-feed publications that follow every committed
// write. All guards evaluate the derived status, never raw flags.
type Store struct {
	repo     Repository
	bus      feed.Bus
	recorder audit.Recorder
	log      logger.Logger
	now      func() time.Time
}

func NewStore(repo Repository, bus feed.Bus, recorder audit.Recorder, log logger.Logger) *Store {
	return &Store{
		repo:     repo,
		bus:      bus,
		recorder: recorder,
		log:      log.WithFields(map[string]interface{}{"store": "assignment"}),
		now:      time.Now,
	}
}

// ==========================
// Duty assignment operations
// ==========================

// CreateAssignment registers a new duty assignment for the period. Used by
// administrators and the scheduling process.
func (s *Store) CreateAssignment(ctx context.Context, periodStart, periodEnd time.Time, parties []models.ResponsibleParty) (*models.DutyAssignment, error) {
	if periodEnd.Before(periodStart) {
		return nil, s.fail("create", apperrors.NewValidationError("periodEnd precedes periodStart"))
	}
	if len(parties) == 0 {
		return nil, s.fail("create", apperrors.NewValidationError("at least one responsible party is required"))
	}

	now := s.now()
	a := &models.DutyAssignment{
		ID:               uuid.NewString(),
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		Parties:          parties,
		AssignedAt:       now,
		UpdatedAt:        now,
		LastTransitionAt: now,
	}
	normalize(a)

	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, s.fail("create", err)
	}
	s.afterAssignmentWrite(ctx, "create", a, "", string(a.Status), "")
	return a, nil
}

// Confirm records acting party's acknowledgement. Any single confirmation
// satisfies the whole assignment; other parties' flags stay untouched, so a
// lost-update race between two guardians is harmless.
func (s *Store) Confirm(ctx context.Context, id, actingParty string) (*models.DutyAssignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, s.fail("confirm", err)
	}
	from := DeriveStatus(a)

	switch from {
	case models.AssignmentSuspended, models.AssignmentCancelled, models.AssignmentCompleted:
		return nil, s.fail("confirm", apperrors.NewInvalidTransitionError("confirm", fmt.Sprintf("assignment %s is %s", id, from)))
	}
	if s.elapsed(a) {
		return nil, s.fail("confirm", apperrors.NewInvalidTransitionError("confirm", fmt.Sprintf("assignment %s period has elapsed", id)))
	}
	if !a.HasParty(actingParty) {
		return nil, s.fail("confirm", apperrors.NewValidationError(fmt.Sprintf("%s is not a responsible party of assignment %s", actingParty, id)))
	}

	now := s.now()
	for i := range a.Parties {
		if a.Parties[i].Identity == actingParty && !a.Parties[i].Confirmed {
			a.Parties[i].Confirmed = true
			t := now
			a.Parties[i].ConfirmedAt = &t
		}
	}
	s.touch(a, now)

	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, s.fail("confirm", err)
	}
	s.afterAssignmentWrite(ctx, "confirm", a, string(from), string(a.Status), actingParty)
	return a, nil
}

// RequestChange flags the assignment for reassignment. Refused once the
// active period has begun: inside the current window it is too late to
// reassign, and after the period it is moot.
func (s *Store) RequestChange(ctx context.Context, id, reason string) (*models.DutyAssignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, s.fail("requestChange", err)
	}
	from := DeriveStatus(a)

	switch from {
	case models.AssignmentSuspended, models.AssignmentCancelled, models.AssignmentCompleted:
		return nil, s.fail("requestChange", apperrors.NewInvalidTransitionError("requestChange", fmt.Sprintf("assignment %s is %s", id, from)))
	}
	if s.elapsed(a) {
		return nil, s.fail("requestChange", apperrors.NewInvalidTransitionError("requestChange", fmt.Sprintf("assignment %s period has elapsed", id)))
	}
	if s.insideWindow(a) {
		return nil, s.fail("requestChange", apperrors.NewInvalidTransitionError("requestChange", "cannot request a change during the active period"))
	}

	a.ChangeRequested = true
	a.ChangeRequestReason = reason
	s.touch(a, s.now())

	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, s.fail("requestChange", err)
	}
	s.afterAssignmentWrite(ctx, "requestChange", a, string(from), string(a.Status), "")
	return a, nil
}

// Cancel withdraws the assignment. Forbidden once completed or suspended,
// or once the period has elapsed.
func (s *Store) Cancel(ctx context.Context, id, reason string) (*models.DutyAssignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, s.fail("cancel", err)
	}
	from := DeriveStatus(a)

	switch from {
	case models.AssignmentCompleted, models.AssignmentSuspended:
		return nil, s.fail("cancel", apperrors.NewInvalidTransitionError("cancel", fmt.Sprintf("assignment %s is %s", id, from)))
	}
	if s.elapsed(a) {
		return nil, s.fail("cancel", apperrors.NewInvalidTransitionError("cancel", fmt.Sprintf("assignment %s period has elapsed", id)))
	}

	a.Cancelled = true
	a.CancellationReason = reason
	s.touch(a, s.now())

	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, s.fail("cancel", err)
	}
	s.afterAssignmentWrite(ctx, "cancel", a, string(from), string(a.Status), "")
	return a, nil
}

// Suspend is the administrative override: every assignment whose period
// overlaps [from, to] is suspended and its confirmation state reset on all
// parties. While active, suspension outranks every other status.
func (s *Store) Suspend(ctx context.Context, from, to time.Time, reason string) ([]*models.DutyAssignment, error) {
	if to.Before(from) {
		return nil, s.fail("suspend", apperrors.NewValidationError("suspension range end precedes start"))
	}

	all, err := s.repo.ListAssignments(ctx)
	if err != nil {
		return nil, s.fail("suspend", err)
	}

	now := s.now()
	var suspended []*models.DutyAssignment
	for _, a := range all {
		if a.PeriodStart.After(to) || a.PeriodEnd.Before(from) {
			continue
		}
		fromStatus := DeriveStatus(a)

		a.Suspended = true
		a.SuspensionReason = reason
		for i := range a.Parties {
			a.Parties[i].Confirmed = false
			a.Parties[i].ConfirmedAt = nil
		}
		s.touch(a, now)

		if err := s.repo.SaveAssignment(ctx, a); err != nil {
			return nil, s.fail("suspend", err)
		}
		s.recorder.RecordTransition(ctx, audit.TransitionEvent{
			Collection: feed.CollectionAssignments,
			RecordID:   a.ID,
			Action:     "suspend",
			FromStatus: string(fromStatus),
			ToStatus:   string(a.Status),
			Reason:     reason,
			At:         now,
		})
		suspended = append(suspended, a)
	}

	metrics.StoreOperations.WithLabelValues("assignment", "suspend", "success").Inc()
	s.publishAssignments(ctx)
	return suspended, nil
}

// Complete marks the duty fulfilled.
func (s *Store) Complete(ctx context.Context, id string) (*models.DutyAssignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, s.fail("complete", err)
	}
	from := DeriveStatus(a)

	switch from {
	case models.AssignmentSuspended, models.AssignmentCancelled:
		return nil, s.fail("complete", apperrors.NewInvalidTransitionError("complete", fmt.Sprintf("assignment %s is %s", id, from)))
	}

	a.Completed = true
	s.touch(a, s.now())

	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, s.fail("complete", err)
	}
	s.afterAssignmentWrite(ctx, "complete", a, string(from), string(a.Status), "")
	return a, nil
}

// ReassignParties replaces the responsible party list. Confirmation flags
// survive for retained parties only; a cleared change request is implied.
func (s *Store) ReassignParties(ctx context.Context, id string, parties []models.ResponsibleParty) (*models.DutyAssignment, error) {
	if len(parties) == 0 {
		return nil, s.fail("reassignParties", apperrors.NewValidationError("at least one responsible party is required"))
	}

	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return nil, s.fail("reassignParties", err)
	}
	from := DeriveStatus(a)

	switch from {
	case models.AssignmentCompleted, models.AssignmentCancelled:
		return nil, s.fail("reassignParties", apperrors.NewInvalidTransitionError("reassignParties", fmt.Sprintf("assignment %s is %s", id, from)))
	}
	if s.elapsed(a) {
		return nil, s.fail("reassignParties", apperrors.NewInvalidTransitionError("reassignParties", fmt.Sprintf("assignment %s period has elapsed", id)))
	}

	prior := make(map[string]models.ResponsibleParty, len(a.Parties))
	for _, p := range a.Parties {
		prior[p.Identity] = p
	}

	next := make([]models.ResponsibleParty, 0, len(parties))
	for _, p := range parties {
		if kept, ok := prior[p.Identity]; ok {
			p.Confirmed = kept.Confirmed
			p.ConfirmedAt = kept.ConfirmedAt
		} else {
			p.Confirmed = false
			p.ConfirmedAt = nil
		}
		next = append(next, p)
	}

	a.Parties = next
	a.ChangeRequested = false
	a.ChangeRequestReason = ""
	s.touch(a, s.now())

	if err := s.repo.SaveAssignment(ctx, a); err != nil {
		return nil, s.fail("reassignParties", err)
	}
	s.afterAssignmentWrite(ctx, "reassignParties", a, string(from), string(a.Status), "")
	return a, nil
}

// ==========================
// Reservation slot operations
// ==========================

// CreateSlots validates the spec, enumerates its slots and persists the ones
// whose instant is not yet covered. An existing slot wins regardless of its
// status, so overlapping generation passes (a weekly cron re-covering part of
// the previous horizon) never yield a second bookable slot for the same
// real-world instant. Returns only the newly inserted slots.
func (s *Store) CreateSlots(ctx context.Context, spec SlotSpec) ([]*models.ReservationSlot, error) {
	generated, err := GenerateSlots(spec, s.now())
	if err != nil {
		return nil, s.fail("generateSlots", err)
	}

	existing, err := s.repo.ListSlots(ctx)
	if err != nil {
		return nil, s.fail("generateSlots", err)
	}
	covered := make(map[int64]bool, len(existing))
	for _, slot := range existing {
		covered[slot.Instant.Unix()] = true
	}

	slots := make([]*models.ReservationSlot, 0, len(generated))
	for i := range generated {
		if covered[generated[i].Instant.Unix()] {
			continue
		}
		slots = append(slots, &generated[i])
	}

	if len(slots) > 0 {
		if err := s.repo.InsertSlots(ctx, slots); err != nil {
			return nil, s.fail("generateSlots", err)
		}
	}

	metrics.StoreOperations.WithLabelValues("assignment", "generateSlots", "success").Inc()
	s.publishSlots(ctx)
	return slots, nil
}

// Book reserves an available slot for the requester. A slot taken by
// another requester between read and write surfaces as a conflict, which
// the caller must not blindly retry.
func (s *Store) Book(ctx context.Context, id, requester, note string) (*models.ReservationSlot, error) {
	slot, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return nil, s.fail("book", err)
	}

	switch slot.Status {
	case models.SlotAvailable:
		// bookable
	case models.SlotReserved:
		return nil, s.fail("book", apperrors.NewConflictError(fmt.Sprintf("slot %s already reserved", id)))
	default:
		return nil, s.fail("book", apperrors.NewInvalidTransitionError("book", fmt.Sprintf("slot %s is %s", id, slot.Status)))
	}

	now := s.now()
	slot.Status = models.SlotReserved
	slot.Requester = requester
	slot.Note = note
	slot.UpdatedAt = now
	slot.LastTransitionAt = now

	if err := s.repo.BookSlot(ctx, slot); err != nil {
		return nil, s.fail("book", err)
	}
	s.afterSlotWrite(ctx, "book", slot, string(models.SlotAvailable), requester)
	return slot, nil
}

// CancelSlot releases a reservation. A future slot returns to available for
// rebooking; a slot whose instant has already passed goes to the terminal
// cancelled status.
func (s *Store) CancelSlot(ctx context.Context, id string) (*models.ReservationSlot, error) {
	slot, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return nil, s.fail("cancelSlot", err)
	}
	if slot.Status != models.SlotReserved {
		return nil, s.fail("cancelSlot", apperrors.NewInvalidTransitionError("cancel", fmt.Sprintf("slot %s is %s", id, slot.Status)))
	}

	now := s.now()
	from := slot.Status
	if now.After(slot.Instant) {
		slot.Status = models.SlotCancelled
	} else {
		slot.Status = models.SlotAvailable
		slot.Requester = ""
	}
	slot.UpdatedAt = now
	slot.LastTransitionAt = now

	if err := s.repo.SaveSlot(ctx, slot); err != nil {
		return nil, s.fail("cancelSlot", err)
	}
	s.afterSlotWrite(ctx, "cancel", slot, string(from), "")
	return slot, nil
}

// Attend marks a reserved slot as attended. Terminal.
func (s *Store) Attend(ctx context.Context, id string) (*models.ReservationSlot, error) {
	return s.transitionSlot(ctx, "attend", id, models.SlotReserved, models.SlotAttended)
}

// Block withdraws an available slot from booking.
func (s *Store) Block(ctx context.Context, id, note string) (*models.ReservationSlot, error) {
	slot, err := s.transitionSlot(ctx, "block", id, models.SlotAvailable, models.SlotBlocked)
	if err != nil {
		return nil, err
	}
	if note != "" {
		slot.Note = note
		if err := s.repo.SaveSlot(ctx, slot); err != nil {
			return nil, s.fail("block", err)
		}
	}
	return slot, nil
}

// Unblock returns a blocked slot to available. It never resurrects
// attended or cancelled slots.
func (s *Store) Unblock(ctx context.Context, id string) (*models.ReservationSlot, error) {
	return s.transitionSlot(ctx, "unblock", id, models.SlotBlocked, models.SlotAvailable)
}

func (s *Store) transitionSlot(ctx context.Context, op, id string, want, next models.SlotStatus) (*models.ReservationSlot, error) {
	slot, err := s.repo.GetSlot(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if slot.Status != want {
		return nil, s.fail(op, apperrors.NewInvalidTransitionError(op, fmt.Sprintf("slot %s is %s", id, slot.Status)))
	}

	now := s.now()
	slot.Status = next
	slot.UpdatedAt = now
	slot.LastTransitionAt = now

	if err := s.repo.SaveSlot(ctx, slot); err != nil {
		return nil, s.fail(op, err)
	}
	s.afterSlotWrite(ctx, op, slot, string(want), "")
	return slot, nil
}

// ==========================
// Internals
// ==========================

func (s *Store) elapsed(a *models.DutyAssignment) bool {
	return s.now().After(a.PeriodEnd)
}

func (s *Store) insideWindow(a *models.DutyAssignment) bool {
	now := s.now()
	return !now.Before(a.PeriodStart) && !now.After(a.PeriodEnd)
}

func (s *Store) touch(a *models.DutyAssignment, now time.Time) {
	a.UpdatedAt = now
	a.LastTransitionAt = now
	normalize(a)
}

func (s *Store) fail(op string, err error) error {
	metrics.StoreOperations.WithLabelValues("assignment", op, "failure").Inc()
	return err
}

func (s *Store) afterAssignmentWrite(ctx context.Context, op string, a *models.DutyAssignment, from, to, actor string) {
	metrics.StoreOperations.WithLabelValues("assignment", op, "success").Inc()
	s.recorder.RecordTransition(ctx, audit.TransitionEvent{
		Collection: feed.CollectionAssignments,
		RecordID:   a.ID,
		Action:     op,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		At:         a.LastTransitionAt,
	})
	s.publishAssignments(ctx)
}

func (s *Store) afterSlotWrite(ctx context.Context, op string, slot *models.ReservationSlot, from, actor string) {
	metrics.StoreOperations.WithLabelValues("assignment", op, "success").Inc()
	s.recorder.RecordTransition(ctx, audit.TransitionEvent{
		Collection: feed.CollectionSlots,
		RecordID:   slot.ID,
		Action:     op,
		FromStatus: from,
		ToStatus:   string(slot.Status),
		Actor:      actor,
		At:         slot.LastTransitionAt,
	})
	s.publishSlots(ctx)
}

// publishAssignments pushes the full collection snapshot. A publish failure
// does not undo the committed write; the next successful publish carries
// the same state forward.
func (s *Store) publishAssignments(ctx context.Context) {
	all, err := s.repo.ListAssignments(ctx)
	if err != nil {
		s.log.Warn("failed to list assignments for feed publish", map[string]interface{}{"error": err})
		return
	}
	records, err := feed.RecordsFrom(all)
	if err != nil {
		s.log.Warn("failed to encode assignment snapshot", map[string]interface{}{"error": err})
		return
	}
	if err := s.bus.Publish(ctx, feed.CollectionAssignments, records); err != nil {
		s.log.Warn("failed to publish assignment snapshot", map[string]interface{}{"error": err})
	}
}

func (s *Store) publishSlots(ctx context.Context) {
	all, err := s.repo.ListSlots(ctx)
	if err != nil {
		s.log.Warn("failed to list slots for feed publish", map[string]interface{}{"error": err})
		return
	}
	records, err := feed.RecordsFrom(all)
	if err != nil {
		s.log.Warn("failed to encode slot snapshot", map[string]interface{}{"error": err})
		return
	}
	if err := s.bus.Publish(ctx, feed.CollectionSlots, records); err != nil {
		s.log.Warn("failed to publish slot snapshot", map[string]interface{}{"error": err})
	}
}
