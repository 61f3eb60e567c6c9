// internal/assignment/store_test.go
package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-engine/internal/audit"
	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/common/logger"
	"portal-engine/internal/feed"
	"portal-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestStore(t *testing.T, now time.Time) (*Store, *MemoryRepository) {
	repo := NewMemoryRepository()
	store := NewStore(repo, feed.NewMemoryBus(), audit.NopRecorder{}, logger.NewTestLogger(t))
	store.now = func() time.Time { return now }
	return store, repo
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func twoParties() []models.ResponsibleParty {
	return []models.ResponsibleParty{
		{Identity: "fam-a", DisplayName: "Family A"},
		{Identity: "fam-b", DisplayName: "Family B"},
	}
}

// ==========================
// Duty assignment tests
// ==========================

func TestStore_CreateAssignment(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))

	a, err := store.CreateAssignment(context.Background(), date("2025-01-06"), date("2025-01-10"), twoParties())
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentPending, a.Status)
	assert.Len(t, a.Parties, 2)
	assert.NotEmpty(t, a.ID)
}

func TestStore_CreateAssignment_Validation(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	_, err := store.CreateAssignment(ctx, date("2025-01-10"), date("2025-01-06"), twoParties())
	assert.True(t, apperrors.IsValidation(err))

	_, err = store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestStore_Confirm_OnePartySatisfiesTheGroup(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	a, err := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
	require.NoError(t, err)

	a, err = store.Confirm(ctx, a.ID, "fam-a")
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentConfirmed, a.Status)
	assert.True(t, a.Parties[0].Confirmed)
	assert.NotNil(t, a.Parties[0].ConfirmedAt)
	assert.False(t, a.Parties[1].Confirmed, "the other party's flag stays informational")
	assert.Nil(t, a.Parties[1].ConfirmedAt)
}

func TestStore_Confirm_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("not a responsible party", func(t *testing.T) {
		store, _ := newTestStore(t, date("2025-01-01"))
		a, _ := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())

		_, err := store.Confirm(ctx, a.ID, "stranger")
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("cancelled assignment", func(t *testing.T) {
		store, _ := newTestStore(t, date("2025-01-01"))
		a, _ := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
		_, err := store.Cancel(ctx, a.ID, "no longer needed")
		require.NoError(t, err)

		_, err = store.Confirm(ctx, a.ID, "fam-a")
		assert.True(t, apperrors.IsInvalidTransition(err))
	})

	t.Run("elapsed period", func(t *testing.T) {
		store, _ := newTestStore(t, date("2025-01-01"))
		a, _ := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
		store.now = func() time.Time { return date("2025-02-01") }

		_, err := store.Confirm(ctx, a.ID, "fam-a")
		assert.True(t, apperrors.IsInvalidTransition(err))
	})

	t.Run("unknown id", func(t *testing.T) {
		store, _ := newTestStore(t, date("2025-01-01"))
		_, err := store.Confirm(ctx, "missing", "fam-a")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestStore_RequestChange_InsideWindowFails(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	a, err := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
	require.NoError(t, err)

	// Today falls inside the active period.
	store.now = func() time.Time { return date("2025-01-08") }

	_, err = store.RequestChange(ctx, a.ID, "conflict with travel")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestStore_RequestChange_BeforeWindow(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	a, err := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
	require.NoError(t, err)

	a, err = store.RequestChange(ctx, a.ID, "conflict with travel")
	require.NoError(t, err)

	assert.Equal(t, models.AssignmentChangeRequested, a.Status)
	assert.Equal(t, "conflict with travel", a.ChangeRequestReason)
}

func TestStore_Cancel_Guards(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	a, err := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
	require.NoError(t, err)
	_, err = store.Complete(ctx, a.ID)
	require.NoError(t, err)

	_, err = store.Cancel(ctx, a.ID, "late cancellation")
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestStore_Suspend_OverlappingRangeResetsConfirmations(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	inside, err := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
	require.NoError(t, err)
	_, err = store.Confirm(ctx, inside.ID, "fam-a")
	require.NoError(t, err)

	outside, err := store.CreateAssignment(ctx, date("2025-02-03"), date("2025-02-07"), twoParties())
	require.NoError(t, err)

	suspended, err := store.Suspend(ctx, date("2025-01-01"), date("2025-01-31"), "facility closed")
	require.NoError(t, err)
	require.Len(t, suspended, 1)

	assert.Equal(t, inside.ID, suspended[0].ID)
	assert.Equal(t, models.AssignmentSuspended, suspended[0].Status)
	for _, p := range suspended[0].Parties {
		assert.False(t, p.Confirmed)
		assert.Nil(t, p.ConfirmedAt)
	}

	got, err := store.repo.GetAssignment(ctx, outside.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentPending, got.Status)
}

func TestStore_ReassignParties_KeepsRetainedFlags(t *testing.T) {
	store, _ := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	a, err := store.CreateAssignment(ctx, date("2025-01-06"), date("2025-01-10"), twoParties())
	require.NoError(t, err)
	_, err = store.Confirm(ctx, a.ID, "fam-a")
	require.NoError(t, err)
	_, err = store.RequestChange(ctx, a.ID, "please swap fam-b out")
	require.NoError(t, err)

	a, err = store.ReassignParties(ctx, a.ID, []models.ResponsibleParty{
		{Identity: "fam-a", DisplayName: "Family A"},
		{Identity: "fam-c", DisplayName: "Family C"},
	})
	require.NoError(t, err)

	assert.True(t, a.Parties[0].Confirmed, "retained party keeps its confirmation")
	assert.False(t, a.Parties[1].Confirmed, "new party starts unconfirmed")
	assert.False(t, a.ChangeRequested, "reassignment clears the pending change request")
	assert.Equal(t, models.AssignmentConfirmed, a.Status)
}

// ==========================
// Reservation slot tests
// ==========================

func seedSlot(t *testing.T, repo *MemoryRepository, status models.SlotStatus, instant time.Time) *models.ReservationSlot {
	slot := &models.ReservationSlot{
		ID:      "slot-1",
		Instant: instant,
		Status:  status,
	}
	require.NoError(t, repo.InsertSlots(context.Background(), []*models.ReservationSlot{slot}))
	return slot
}

func TestStore_Book(t *testing.T) {
	store, repo := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()
	seedSlot(t, repo, models.SlotAvailable, date("2025-01-10"))

	slot, err := store.Book(ctx, "slot-1", "fam-a", "first visit")
	require.NoError(t, err)

	assert.Equal(t, models.SlotReserved, slot.Status)
	assert.Equal(t, "fam-a", slot.Requester)
}

func TestStore_Book_AlreadyReservedConflicts(t *testing.T) {
	store, repo := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()
	seedSlot(t, repo, models.SlotAvailable, date("2025-01-10"))

	_, err := store.Book(ctx, "slot-1", "fam-a", "")
	require.NoError(t, err)

	_, err = store.Book(ctx, "slot-1", "fam-b", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestStore_Book_BlockedSlot(t *testing.T) {
	store, repo := newTestStore(t, date("2025-01-01"))
	seedSlot(t, repo, models.SlotBlocked, date("2025-01-10"))

	_, err := store.Book(context.Background(), "slot-1", "fam-a", "")
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestStore_CancelSlot_FutureReturnsToAvailable(t *testing.T) {
	store, repo := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()
	seedSlot(t, repo, models.SlotAvailable, date("2025-01-10"))

	_, err := store.Book(ctx, "slot-1", "fam-a", "")
	require.NoError(t, err)

	slot, err := store.CancelSlot(ctx, "slot-1")
	require.NoError(t, err)

	assert.Equal(t, models.SlotAvailable, slot.Status)
	assert.Empty(t, slot.Requester)
}

func TestStore_CancelSlot_PastIsTerminal(t *testing.T) {
	store, repo := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()
	seedSlot(t, repo, models.SlotAvailable, date("2025-01-10"))

	_, err := store.Book(ctx, "slot-1", "fam-a", "")
	require.NoError(t, err)

	store.now = func() time.Time { return date("2025-01-11") }
	slot, err := store.CancelSlot(ctx, "slot-1")
	require.NoError(t, err)

	assert.Equal(t, models.SlotCancelled, slot.Status)
}

func TestStore_SlotTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("attend reserved", func(t *testing.T) {
		store, repo := newTestStore(t, date("2025-01-01"))
		seedSlot(t, repo, models.SlotReserved, date("2025-01-10"))

		slot, err := store.Attend(ctx, "slot-1")
		require.NoError(t, err)
		assert.Equal(t, models.SlotAttended, slot.Status)
	})

	t.Run("block and unblock", func(t *testing.T) {
		store, repo := newTestStore(t, date("2025-01-01"))
		seedSlot(t, repo, models.SlotAvailable, date("2025-01-10"))

		slot, err := store.Block(ctx, "slot-1", "maintenance")
		require.NoError(t, err)
		assert.Equal(t, models.SlotBlocked, slot.Status)
		assert.Equal(t, "maintenance", slot.Note)

		slot, err = store.Unblock(ctx, "slot-1")
		require.NoError(t, err)
		assert.Equal(t, models.SlotAvailable, slot.Status)
	})

	t.Run("unblock never resurrects attended", func(t *testing.T) {
		store, repo := newTestStore(t, date("2025-01-01"))
		seedSlot(t, repo, models.SlotAttended, date("2025-01-10"))

		_, err := store.Unblock(ctx, "slot-1")
		assert.True(t, apperrors.IsInvalidTransition(err))
	})
}

func TestStore_CreateSlots_SkipsCoveredInstants(t *testing.T) {
	store, repo := newTestStore(t, date("2025-01-01"))
	ctx := context.Background()

	spec := SlotSpec{
		Weekday:         "Monday",
		From:            "2025-01-06",
		To:              "2025-01-20",
		Start:           "09:00",
		End:             "11:00",
		DurationMinutes: 30,
	}

	first, err := store.CreateSlots(ctx, spec)
	require.NoError(t, err)
	require.Len(t, first, 8)

	second, err := store.CreateSlots(ctx, spec)
	require.NoError(t, err)
	assert.Empty(t, second, "re-running the same spec adds nothing")

	// A widened range only adds the Monday not yet covered.
	spec.To = "2025-01-27"
	third, err := store.CreateSlots(ctx, spec)
	require.NoError(t, err)
	assert.Len(t, third, 4)

	slots, err := repo.ListSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 12)

	seen := map[time.Time]bool{}
	for _, slot := range slots {
		require.False(t, seen[slot.Instant], "duplicate slot for %s", slot.Instant)
		seen[slot.Instant] = true
	}
}
