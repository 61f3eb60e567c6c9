// internal/conversation/store.go
package conversation

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"portal-engine/internal/audit"
	apperrors "portal-engine/internal/common/errors"
	"portal-engine/internal/common/logger"
	"portal-engine/internal/common/metrics"
	"portal-engine/internal/feed"
	"portal-engine/internal/models"
)

const previewLength = 120

// MessageInput is the author-supplied part of a new message.
type MessageInput struct {
	AuthorIdentity string
	AuthorSide     models.Side
	Text           string
	Attachments    []string
}

// Store owns conversation threads and the thread-level status derived from
// message authorship. Closed is terminal; no reply is accepted after it.
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
		log:      log.WithFields(map[string]interface{}{"store": "conversation"}),
		now:      time.Now,
	}
}

// deriveThreadStatus is the single normalization of a thread's fields into
// its status: closed wins; an internal last message means responded; an
// external last message is active only once the internal side has replied
// at least once, pending before that.
func deriveThreadStatus(t *models.ConversationThread) models.ThreadStatus {
	switch {
	case t.Closed:
		return models.ThreadClosed
	case t.LastMessageSide == models.SideInternal:
		return models.ThreadResponded
	case t.InternalReplied:
		return models.ThreadActive
	default:
		return models.ThreadPending
	}
}

// Open creates a thread from its first message.
func (s *Store) Open(ctx context.Context, subjectParty, targetArea, category string, first MessageInput) (*models.ConversationThread, error) {
	if subjectParty == "" || targetArea == "" {
		return nil, s.fail("open", apperrors.NewValidationError("subjectParty and targetArea are required"))
	}
	if first.Text == "" {
		return nil, s.fail("open", apperrors.NewValidationError("first message text is required"))
	}
	if !validSide(first.AuthorSide) {
		return nil, s.fail("open", apperrors.NewValidationError("author side must be external or internal"))
	}

	now := s.now()
	t := &models.ConversationThread{
		ID:               uuid.NewString(),
		SubjectParty:     subjectParty,
		TargetArea:       targetArea,
		Category:         category,
		InternalReplied:  first.AuthorSide == models.SideInternal,
		LastMessageSide:  first.AuthorSide,
		LastMessageAt:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
	}
	t.LastMessagePreview = preview(first.Text)
	t.Status = deriveThreadStatus(t)

	// The first message is unread for the recipient side only.
	if first.AuthorSide == models.SideExternal {
		t.UnreadInternal = 1
	} else {
		t.UnreadExternal = 1
	}

	if err := s.repo.SaveThread(ctx, t); err != nil {
		return nil, s.fail("open", err)
	}
	if err := s.repo.InsertMessage(ctx, s.buildMessage(t.ID, first, now)); err != nil {
		return nil, s.fail("open", err)
	}

	s.afterWrite(ctx, "open", t, "", first.AuthorIdentity)
	return t, nil
}

// Reply appends a message to a thread. The recipient's unread counter is
// bumped through the repository's atomic increment, so concurrent replies
// from both sides are both reflected.
func (s *Store) Reply(ctx context.Context, threadID string, msg MessageInput) (*models.ConversationThread, error) {
	if msg.Text == "" {
		return nil, s.fail("reply", apperrors.NewValidationError("message text is required"))
	}
	if !validSide(msg.AuthorSide) {
		return nil, s.fail("reply", apperrors.NewValidationError("author side must be external or internal"))
	}

	t, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, s.fail("reply", err)
	}
	if t.Closed {
		return nil, s.fail("reply", apperrors.NewThreadClosedError(threadID))
	}

	now := s.now()
	from := t.Status

	if err := s.repo.InsertMessage(ctx, s.buildMessage(t.ID, msg, now)); err != nil {
		return nil, s.fail("reply", err)
	}

	if msg.AuthorSide == models.SideInternal {
		t.InternalReplied = true
	}
	t.LastMessageSide = msg.AuthorSide
	t.LastMessageAt = now
	t.LastMessagePreview = preview(msg.Text)
	t.UpdatedAt = now
	t.LastTransitionAt = now
	t.Status = deriveThreadStatus(t)

	if err := s.repo.SaveThread(ctx, t); err != nil {
		return nil, s.fail("reply", err)
	}

	recipient := msg.AuthorSide.Opposite()
	n, err := s.repo.IncrementUnread(ctx, t.ID, recipient)
	if err != nil {
		return nil, s.fail("reply", err)
	}
	if recipient == models.SideExternal {
		t.UnreadExternal = n
	} else {
		t.UnreadInternal = n
	}

	s.afterWrite(ctx, "reply", t, string(from), msg.AuthorIdentity)
	return t, nil
}

// Close is terminal. Closing an already closed thread is a no-op.
func (s *Store) Close(ctx context.Context, threadID string) (*models.ConversationThread, error) {
	t, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, s.fail("close", err)
	}
	if t.Closed {
		return t, nil
	}

	now := s.now()
	from := t.Status
	t.Closed = true
	t.UpdatedAt = now
	t.LastTransitionAt = now
	t.Status = deriveThreadStatus(t)

	if err := s.repo.SaveThread(ctx, t); err != nil {
		return nil, s.fail("close", err)
	}

	s.afterWrite(ctx, "close", t, string(from), "")
	return t, nil
}

// Reassign changes routing only: status, counters and history stay as they
// are.
func (s *Store) Reassign(ctx context.Context, threadID, newArea string) (*models.ConversationThread, error) {
	if newArea == "" {
		return nil, s.fail("reassign", apperrors.NewValidationError("newArea is required"))
	}

	t, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, s.fail("reassign", err)
	}

	t.TargetArea = newArea
	t.UpdatedAt = s.now()

	if err := s.repo.SaveThread(ctx, t); err != nil {
		return nil, s.fail("reassign", err)
	}

	metrics.StoreOperations.WithLabelValues("conversation", "reassign", "success").Inc()
	s.publishThreads(ctx)
	return t, nil
}

// MarkRead zeroes one side's unread counter. Idempotent; last write wins
// against a concurrent Reply, which can at most transiently under-count
// because the next reply re-increments.
func (s *Store) MarkRead(ctx context.Context, threadID string, side models.Side) error {
	if err := s.repo.ResetUnread(ctx, threadID, side); err != nil {
		return s.fail("markRead", err)
	}

	metrics.StoreOperations.WithLabelValues("conversation", "markRead", "success").Inc()
	s.publishThreads(ctx)
	return nil
}

// Messages returns a thread's history.
func (s *Store) Messages(ctx context.Context, threadID string) ([]*models.Message, error) {
	if _, err := s.repo.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, threadID)
}

// ==========================
// Internals
// ==========================

func (s *Store) buildMessage(threadID string, in MessageInput, now time.Time) *models.Message {
	return &models.Message{
		ID:             uuid.NewString(),
		ThreadID:       threadID,
		AuthorIdentity: in.AuthorIdentity,
		AuthorSide:     in.AuthorSide,
		Text:           in.Text,
		Attachments:    in.Attachments,
		CreatedAt:      now,
	}
}

func validSide(side models.Side) bool {
	return side == models.SideExternal || side == models.SideInternal
}

// preview truncates to at most previewLength bytes without splitting a rune.
func preview(text string) string {
	if len(text) <= previewLength {
		return text
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (s *Store) fail(op string, err error) error {
	metrics.StoreOperations.WithLabelValues("conversation", op, "failure").Inc()
	return err
}

func (s *Store) afterWrite(ctx context.Context, op string, t *models.ConversationThread, from, actor string) {
	metrics.StoreOperations.WithLabelValues("conversation", op, "success").Inc()
	s.recorder.RecordTransition(ctx, audit.TransitionEvent{
		Collection: feed.CollectionThreads,
		RecordID:   t.ID,
		Action:     op,
		FromStatus: from,
		ToStatus:   string(t.Status),
		Actor:      actor,
		At:         t.LastTransitionAt,
	})
	s.publishThreads(ctx)
}

func (s *Store) publishThreads(ctx context.Context) {
	all, err := s.repo.ListThreads(ctx)
	if err != nil {
		s.log.Warn("failed to list threads for feed publish", map[string]interface{}{"error": err})
		return
	}
	records, err := feed.RecordsFrom(all)
	if err != nil {
		s.log.Warn("failed to encode thread snapshot", map[string]interface{}{"error": err})
		return
	}
	if err := s.bus.Publish(ctx, feed.CollectionThreads, records); err != nil {
		s.log.Warn("failed to publish thread snapshot", map[string]interface{}{"error": err})
	}
}
