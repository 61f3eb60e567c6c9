// internal/assignment/postgres.go
package assignment

import (
	"context"
	"database/sql"
	"encoding/json"

	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/models"
)

// PostgresRepository persists assignments and slots. The party list is
// stored as JSONB; rows written by the legacy single-party portal carry an
// empty list plus a responsible_party column and are merged into the
// canonical list-of-parties shape at read time.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const assignmentColumns = `
	id, period_start, period_end, parties,
	completed, change_requested, change_request_reason,
	cancelled, cancellation_reason, suspended, suspension_reason,
	status, assigned_at, updated_at, last_transition_at,
	responsible_party, responsible_party_name`

func (r *PostgresRepository) GetAssignment(ctx context.Context, id string) (*models.DutyAssignment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM duty_assignments
		WHERE id = $1`, id)

	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("assignments", id)
	}
	if err != nil {
		return nil, apperrors.NewInfrastructureError("get assignment", err)
	}
	return a, nil
}

func (r *PostgresRepository) SaveAssignment(ctx context.Context, a *models.DutyAssignment) error {
	parties, err := json.Marshal(a.Parties)
	if err != nil {
		return apperrors.NewInfrastructureError("save assignment", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO duty_assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULL, NULL)
		ON CONFLICT (id) DO UPDATE SET
			parties = EXCLUDED.parties,
			completed = EXCLUDED.completed,
			change_requested = EXCLUDED.change_requested,
			change_request_reason = EXCLUDED.change_request_reason,
			cancelled = EXCLUDED.cancelled,
			cancellation_reason = EXCLUDED.cancellation_reason,
			suspended = EXCLUDED.suspended,
			suspension_reason = EXCLUDED.suspension_reason,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			last_transition_at = EXCLUDED.last_transition_at`,
		a.ID, a.PeriodStart, a.PeriodEnd, parties,
		a.Completed, a.ChangeRequested, a.ChangeRequestReason,
		a.Cancelled, a.CancellationReason, a.Suspended, a.SuspensionReason,
		a.Status, a.AssignedAt, a.UpdatedAt, a.LastTransitionAt,
	)
	if err != nil {
		return apperrors.NewInfrastructureError("save assignment", err)
	}
	return nil
}

func (r *PostgresRepository) ListAssignments(ctx context.Context) ([]*models.DutyAssignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM duty_assignments
		ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("list assignments", err)
	}
	defer rows.Close()

	var out []*models.DutyAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, apperrors.NewInfrastructureError("list assignments", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInfrastructureError("list assignments", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(row rowScanner) (*models.DutyAssignment, error) {
	var (
		a          models.DutyAssignment
		parties    []byte
		legacyID   sql.NullString
		legacyName sql.NullString
	)

	err := row.Scan(
		&a.ID, &a.PeriodStart, &a.PeriodEnd, &parties,
		&a.Completed, &a.ChangeRequested, &a.ChangeRequestReason,
		&a.Cancelled, &a.CancellationReason, &a.Suspended, &a.SuspensionReason,
		&a.Status, &a.AssignedAt, &a.UpdatedAt, &a.LastTransitionAt,
		&legacyID, &legacyName,
	)
	if err != nil {
		return nil, err
	}

	if len(parties) > 0 {
		if err := json.Unmarshal(parties, &a.Parties); err != nil {
			return nil, err
		}
	}

	// Legacy single-party rows: fold the old column into the canonical
	// list-of-parties shape. Nothing ever writes this shape back.
	if len(a.Parties) == 0 && legacyID.Valid && legacyID.String != "" {
		a.Parties = []models.ResponsibleParty{{
			Identity:    legacyID.String,
			DisplayName: legacyName.String,
		}}
	}

	return &a, nil
}

// ==========================
// Slots
// ==========================

const slotColumns = `id, instant, status, requester, note, created_at, updated_at, last_transition_at`

func (r *PostgresRepository) GetSlot(ctx context.Context, id string) (*models.ReservationSlot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+slotColumns+`
		FROM reservation_slots
		WHERE id = $1`, id)

	s, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("slots", id)
	}
	if err != nil {
		return nil, apperrors.NewInfrastructureError("get slot", err)
	}
	return s, nil
}

func (r *PostgresRepository) SaveSlot(ctx context.Context, s *models.ReservationSlot) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reservation_slots
		SET status = $2, requester = $3, note = $4, updated_at = $5, last_transition_at = $6
		WHERE id = $1`,
		s.ID, s.Status, s.Requester, s.Note, s.UpdatedAt, s.LastTransitionAt,
	)
	if err != nil {
		return apperrors.NewInfrastructureError("save slot", err)
	}
	return nil
}

// BookSlot is the compare-and-set write backing book(): the reservation
// lands only if the row is still available, so two concurrent requesters
// cannot both win.
func (r *PostgresRepository) BookSlot(ctx context.Context, s *models.ReservationSlot) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reservation_slots
		SET status = $2, requester = $3, note = $4, updated_at = $5, last_transition_at = $6
		WHERE id = $1 AND status = 'available'`,
		s.ID, s.Status, s.Requester, s.Note, s.UpdatedAt, s.LastTransitionAt,
	)
	if err != nil {
		return apperrors.NewInfrastructureError("book slot", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInfrastructureError("book slot", err)
	}
	if affected == 0 {
		return apperrors.NewConflictError("slot no longer available: " + s.ID)
	}
	return nil
}

func (r *PostgresRepository) InsertSlots(ctx context.Context, slots []*models.ReservationSlot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewInfrastructureError("insert slots", err)
	}
	defer tx.Rollback()

	for _, s := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reservation_slots (`+slotColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.ID, s.Instant, s.Status, s.Requester, s.Note, s.CreatedAt, s.UpdatedAt, s.LastTransitionAt,
		); err != nil {
			return apperrors.NewInfrastructureError("insert slots", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInfrastructureError("insert slots", err)
	}
	return nil
}

func (r *PostgresRepository) ListSlots(ctx context.Context) ([]*models.ReservationSlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM reservation_slots
		ORDER BY instant, id`)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("list slots", err)
	}
	defer rows.Close()

	var out []*models.ReservationSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, apperrors.NewInfrastructureError("list slots", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInfrastructureError("list slots", err)
	}
	return out, nil
}

func scanSlot(row rowScanner) (*models.ReservationSlot, error) {
	var s models.ReservationSlot
	err := row.Scan(
		&s.ID, &s.Instant, &s.Status, &s.Requester, &s.Note,
		&s.CreatedAt, &s.UpdatedAt, &s.LastTransitionAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
