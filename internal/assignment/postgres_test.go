// internal/assignment/postgres_test.go
package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/models"
)

func setupMockDB(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func assignmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "period_start", "period_end", "parties",
		"completed", "change_requested", "change_request_reason",
		"cancelled", "cancellation_reason", "suspended", "suspension_reason",
		"status", "assigned_at", "updated_at", "last_transition_at",
		"responsible_party", "responsible_party_name",
	})
}

func TestPostgresRepository_GetAssignment_PartiesList(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	rows := assignmentRows().AddRow(
		"a-1", now, now.Add(96*time.Hour),
		[]byte(`[{"identity":"fam-a","displayName":"Family A","confirmed":true}]`),
		false, false, "", false, "", false, "",
		"confirmed", now, now, now,
		nil, nil,
	)
	mock.ExpectQuery("SELECT(.|\n)+FROM duty_assignments").
		WithArgs("a-1").
		WillReturnRows(rows)

	a, err := repo.GetAssignment(context.Background(), "a-1")
	require.NoError(t, err)

	require.Len(t, a.Parties, 1)
	assert.Equal(t, "fam-a", a.Parties[0].Identity)
	assert.True(t, a.Parties[0].Confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetAssignment_LegacySinglePartyRow(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	// Rows written by the old portal carry an empty parties list plus the
	// single-party columns; the scan folds them into the canonical shape.
	rows := assignmentRows().AddRow(
		"a-2", now, now.Add(96*time.Hour),
		[]byte(`[]`),
		false, false, "", false, "", false, "",
		"pending", now, now, now,
		"fam-legacy", "Legacy Family",
	)
	mock.ExpectQuery("SELECT(.|\n)+FROM duty_assignments").
		WithArgs("a-2").
		WillReturnRows(rows)

	a, err := repo.GetAssignment(context.Background(), "a-2")
	require.NoError(t, err)

	require.Len(t, a.Parties, 1)
	assert.Equal(t, "fam-legacy", a.Parties[0].Identity)
	assert.Equal(t, "Legacy Family", a.Parties[0].DisplayName)
	assert.False(t, a.Parties[0].Confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetAssignment_NotFound(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT(.|\n)+FROM duty_assignments").
		WithArgs("missing").
		WillReturnRows(assignmentRows())

	_, err := repo.GetAssignment(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_BookSlot_CompareAndSet(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	slot := &models.ReservationSlot{
		ID:               "slot-1",
		Status:           models.SlotReserved,
		Requester:        "fam-a",
		UpdatedAt:        now,
		LastTransitionAt: now,
	}

	mock.ExpectExec("UPDATE reservation_slots(.|\n)+status = 'available'").
		WithArgs("slot-1", string(models.SlotReserved), "fam-a", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.BookSlot(context.Background(), slot)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_BookSlot_LostRaceConflicts(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	slot := &models.ReservationSlot{
		ID:               "slot-1",
		Status:           models.SlotReserved,
		Requester:        "fam-b",
		UpdatedAt:        now,
		LastTransitionAt: now,
	}

	// Another requester won between read and write: zero rows match the
	// status = 'available' predicate.
	mock.ExpectExec("UPDATE reservation_slots(.|\n)+status = 'available'").
		WithArgs("slot-1", string(models.SlotReserved), "fam-b", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.BookSlot(context.Background(), slot)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.False(t, apperrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_InsertSlots_Transactional(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()
	slots := []*models.ReservationSlot{
		{ID: "s-1", Instant: now, Status: models.SlotAvailable, CreatedAt: now, UpdatedAt: now, LastTransitionAt: now},
		{ID: "s-2", Instant: now.Add(30 * time.Minute), Status: models.SlotAvailable, CreatedAt: now, UpdatedAt: now, LastTransitionAt: now},
	}

	mock.ExpectBegin()
	for _, s := range slots {
		mock.ExpectExec("INSERT INTO reservation_slots").
			WithArgs(s.ID, s.Instant, string(s.Status), "", "", now, now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := repo.InsertSlots(context.Background(), slots)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
