// internal/conversation/repository.go
package conversation

import (
	"context"
	"sort"
	"sync"

	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/models"
)

// Repository persists conversation threads and their immutable messages.
// IncrementUnread and ResetUnread must be atomic at the record level:
// concurrent replies from both sides must both be reflected without
// coordination in the store.
type Repository interface {
	GetThread(ctx context.Context, id string) (*models.ConversationThread, error)
	SaveThread(ctx context.Context, t *models.ConversationThread) error
	ListThreads(ctx context.Context) ([]*models.ConversationThread, error)

	InsertMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, threadID string) ([]*models.Message, error)

	IncrementUnread(ctx context.Context, threadID string, side models.Side) (int, error)
	ResetUnread(ctx context.Context, threadID string, side models.Side) error
}

// MemoryRepository is an in-process Repository used by tests and available
// for single-node deployments.
type MemoryRepository struct {
	mu       sync.Mutex
	threads  map[string]models.ConversationThread
	messages map[string][]models.Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		threads:  make(map[string]models.ConversationThread),
		messages: make(map[string][]models.Message),
	}
}

func (r *MemoryRepository) GetThread(ctx context.Context, id string) (*models.ConversationThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("threads", id)
	}
	out := t
	return &out, nil
}

// SaveThread writes every thread field except the unread counters, which
// belong to IncrementUnread/ResetUnread alone. A stale in-memory counter on
// the written copy can therefore never clobber a concurrent increment.
func (r *MemoryRepository) SaveThread(ctx context.Context, t *models.ConversationThread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.threads[t.ID]; ok {
		saved := *t
		saved.UnreadExternal = current.UnreadExternal
		saved.UnreadInternal = current.UnreadInternal
		r.threads[t.ID] = saved
		return nil
	}
	r.threads[t.ID] = *t
	return nil
}

func (r *MemoryRepository) ListThreads(ctx context.Context) ([]*models.ConversationThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ConversationThread, 0, len(r.threads))
	for _, t := range r.threads {
		c := t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) InsertMessage(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.ThreadID] = append(r.messages[m.ThreadID], *m)
	return nil
}

func (r *MemoryRepository) ListMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[threadID]
	out := make([]*models.Message, len(msgs))
	for i := range msgs {
		c := msgs[i]
		out[i] = &c
	}
	return out, nil
}

func (r *MemoryRepository) IncrementUnread(ctx context.Context, threadID string, side models.Side) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[threadID]
	if !ok {
		return 0, apperrors.NewNotFoundError("threads", threadID)
	}
	var n int
	if side == models.SideExternal {
		t.UnreadExternal++
		n = t.UnreadExternal
	} else {
		t.UnreadInternal++
		n = t.UnreadInternal
	}
	r.threads[threadID] = t
	return n, nil
}

func (r *MemoryRepository) ResetUnread(ctx context.Context, threadID string, side models.Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[threadID]
	if !ok {
		return apperrors.NewNotFoundError("threads", threadID)
	}
	if side == models.SideExternal {
		t.UnreadExternal = 0
	} else {
		t.UnreadInternal = 0
	}
	r.threads[threadID] = t
	return nil
}
