// internal/conversation/postgres.go
package conversation

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/models"
)

// PostgresRepository persists threads and messages. Unread counters are
// only ever changed through single-statement relative updates, which is
// what makes IncrementUnread/ResetUnread atomic at the record level.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const threadColumns = `
	id, subject_party, target_area, category,
	closed, internal_replied, status,
	unread_external, unread_internal,
	last_message_side, last_message_at, last_message_preview,
	created_at, updated_at, last_transition_at`

func (r *PostgresRepository) GetThread(ctx context.Context, id string) (*models.ConversationThread, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+`
		FROM conversation_threads
		WHERE id = $1`, id)

	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("threads", id)
	}
	if err != nil {
		return nil, apperrors.NewInfrastructureError("get thread", err)
	}
	return t, nil
}

// SaveThread deliberately leaves the unread counters out of the UPDATE so
// a concurrent increment is never clobbered by a stale read.
func (r *PostgresRepository) SaveThread(ctx context.Context, t *models.ConversationThread) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_threads (`+threadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			target_area = EXCLUDED.target_area,
			closed = EXCLUDED.closed,
			internal_replied = EXCLUDED.internal_replied,
			status = EXCLUDED.status,
			last_message_side = EXCLUDED.last_message_side,
			last_message_at = EXCLUDED.last_message_at,
			last_message_preview = EXCLUDED.last_message_preview,
			updated_at = EXCLUDED.updated_at,
			last_transition_at = EXCLUDED.last_transition_at`,
		t.ID, t.SubjectParty, t.TargetArea, t.Category,
		t.Closed, t.InternalReplied, t.Status,
		t.UnreadExternal, t.UnreadInternal,
		t.LastMessageSide, t.LastMessageAt, t.LastMessagePreview,
		t.CreatedAt, t.UpdatedAt, t.LastTransitionAt,
	)
	if err != nil {
		return apperrors.NewInfrastructureError("save thread", err)
	}
	return nil
}

func (r *PostgresRepository) ListThreads(ctx context.Context) ([]*models.ConversationThread, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+threadColumns+`
		FROM conversation_threads
		ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("list threads", err)
	}
	defer rows.Close()

	var out []*models.ConversationThread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, apperrors.NewInfrastructureError("list threads", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInfrastructureError("list threads", err)
	}
	return out, nil
}

func (r *PostgresRepository) InsertMessage(ctx context.Context, m *models.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, author_identity, author_side, text, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ThreadID, m.AuthorIdentity, m.AuthorSide, m.Text, pq.Array(m.Attachments), m.CreatedAt,
	)
	if err != nil {
		return apperrors.NewInfrastructureError("insert message", err)
	}
	return nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, thread_id, author_identity, author_side, text, attachments, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, apperrors.NewInfrastructureError("list messages", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID, &m.ThreadID, &m.AuthorIdentity, &m.AuthorSide,
			&m.Text, pq.Array(&m.Attachments), &m.CreatedAt,
		); err != nil {
			return nil, apperrors.NewInfrastructureError("list messages", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInfrastructureError("list messages", err)
	}
	return out, nil
}

func (r *PostgresRepository) IncrementUnread(ctx context.Context, threadID string, side models.Side) (int, error) {
	column := unreadColumn(side)

	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE conversation_threads
		SET `+column+` = `+column+` + 1
		WHERE id = $1
		RETURNING `+column, threadID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, apperrors.NewNotFoundError("threads", threadID)
	}
	if err != nil {
		return 0, apperrors.NewInfrastructureError("increment unread", err)
	}
	return n, nil
}

func (r *PostgresRepository) ResetUnread(ctx context.Context, threadID string, side models.Side) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversation_threads
		SET `+unreadColumn(side)+` = 0
		WHERE id = $1`, threadID)
	if err != nil {
		return apperrors.NewInfrastructureError("reset unread", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInfrastructureError("reset unread", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("threads", threadID)
	}
	return nil
}

func unreadColumn(side models.Side) string {
	if side == models.SideExternal {
		return "unread_external"
	}
	return "unread_internal"
}

func scanThread(row interface{ Scan(...interface{}) error }) (*models.ConversationThread, error) {
	var t models.ConversationThread
	err := row.Scan(
		&t.ID, &t.SubjectParty, &t.TargetArea, &t.Category,
		&t.Closed, &t.InternalReplied, &t.Status,
		&t.UnreadExternal, &t.UnreadInternal,
		&t.LastMessageSide, &t.LastMessageAt, &t.LastMessagePreview,
		&t.CreatedAt, &t.UpdatedAt, &t.LastTransitionAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
