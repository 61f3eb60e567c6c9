// internal/assignment/repository.go
package assignment

import (
	"context"
	"sort"
	"sync"

	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/models"
)

// Repository persists duty assignments and reservation slots. Implementations
// must make BookSlot a compare-and-set on the slot's availability so a lost
// booking race surfaces as a conflict, never as a silent overwrite.
type Repository interface {
	GetAssignment(ctx context.Context, id string) (*models.DutyAssignment, error)
	SaveAssignment(ctx context.Context, a *models.DutyAssignment) error
	ListAssignments(ctx context.Context) ([]*models.DutyAssignment, error)

	GetSlot(ctx context.Context, id string) (*models.ReservationSlot, error)
	SaveSlot(ctx context.Context, s *models.ReservationSlot) error
	// BookSlot reserves the slot for requester only if it is still
	// available, returning a conflict error otherwise.
	BookSlot(ctx context.Context, s *models.ReservationSlot) error
	InsertSlots(ctx context.Context, slots []*models.ReservationSlot) error
	ListSlots(ctx context.Context) ([]*models.ReservationSlot, error)
}

// MemoryRepository is an in-process Repository used by tests and available
// for single-node deployments.
type MemoryRepository struct {
	mu          sync.RWMutex
	assignments map[string]models.DutyAssignment
	slots       map[string]models.ReservationSlot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		assignments: make(map[string]models.DutyAssignment),
		slots:       make(map[string]models.ReservationSlot),
	}
}

func (r *MemoryRepository) GetAssignment(ctx context.Context, id string) (*models.DutyAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("assignments", id)
	}
	out := cloneAssignment(a)
	return &out, nil
}

func (r *MemoryRepository) SaveAssignment(ctx context.Context, a *models.DutyAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[a.ID] = cloneAssignment(*a)
	return nil
}

func (r *MemoryRepository) ListAssignments(ctx context.Context) ([]*models.DutyAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.DutyAssignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		c := cloneAssignment(a)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) GetSlot(ctx context.Context, id string) (*models.ReservationSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("slots", id)
	}
	out := s
	return &out, nil
}

func (r *MemoryRepository) SaveSlot(ctx context.Context, s *models.ReservationSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[s.ID] = *s
	return nil
}

func (r *MemoryRepository) BookSlot(ctx context.Context, s *models.ReservationSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.slots[s.ID]
	if !ok {
		return apperrors.NewNotFoundError("slots", s.ID)
	}
	if current.Status != models.SlotAvailable {
		return apperrors.NewConflictError("slot no longer available: " + s.ID)
	}
	r.slots[s.ID] = *s
	return nil
}

func (r *MemoryRepository) InsertSlots(ctx context.Context, slots []*models.ReservationSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range slots {
		r.slots[s.ID] = *s
	}
	return nil
}

func (r *MemoryRepository) ListSlots(ctx context.Context) ([]*models.ReservationSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.ReservationSlot, 0, len(r.slots))
	for _, s := range r.slots {
		c := s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instant.Equal(out[j].Instant) {
			return out[i].ID < out[j].ID
		}
		return out[i].Instant.Before(out[j].Instant)
	})
	return out, nil
}

func cloneAssignment(a models.DutyAssignment) models.DutyAssignment {
	parties := make([]models.ResponsibleParty, len(a.Parties))
	copy(parties, a.Parties)
	a.Parties = parties
	return a
}
