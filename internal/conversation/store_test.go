// internal/conversation/store_test.go
package conversation

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

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

func newTestStore(t *testing.T) *Store {
	store := NewStore(NewMemoryRepository(), feed.NewMemoryBus(), audit.NopRecorder{}, logger.NewTestLogger(t))
	store.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return store
}

func externalMessage(text string) MessageInput {
	return MessageInput{AuthorIdentity: "fam-a", AuthorSide: models.SideExternal, Text: text}
}

func internalMessage(text string) MessageInput {
	return MessageInput{AuthorIdentity: "staff-1", AuthorSide: models.SideInternal, Text: text}
}

// ==========================
// Open / Reply
// ==========================

func TestStore_Open_ExternalFirstMessage(t *testing.T) {
	store := newTestStore(t)

	th, err := store.Open(context.Background(), "fam-a", "administration", "billing", externalMessage("hello"))
	require.NoError(t, err)

	assert.Equal(t, models.ThreadPending, th.Status)
	assert.Equal(t, 1, th.UnreadInternal, "first message is unread for the recipient side")
	assert.Equal(t, 0, th.UnreadExternal)
	assert.False(t, th.InternalReplied)
	assert.Equal(t, "hello", th.LastMessagePreview)
}

func TestStore_Open_InternalFirstMessage(t *testing.T) {
	store := newTestStore(t)

	th, err := store.Open(context.Background(), "fam-a", "administration", "", internalMessage("welcome"))
	require.NoError(t, err)

	assert.Equal(t, models.ThreadResponded, th.Status)
	assert.Equal(t, 1, th.UnreadExternal)
	assert.Equal(t, 0, th.UnreadInternal)
	assert.True(t, th.InternalReplied)
}

func TestStore_Reply_StatusDerivation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)

	// External reply before any internal reply: still pending.
	th, err = store.Reply(ctx, th.ID, externalMessage("anyone there?"))
	require.NoError(t, err)
	assert.Equal(t, models.ThreadPending, th.Status)

	// Internal reply: responded.
	th, err = store.Reply(ctx, th.ID, internalMessage("yes, looking into it"))
	require.NoError(t, err)
	assert.Equal(t, models.ThreadResponded, th.Status)

	// External reply after an internal one: active.
	th, err = store.Reply(ctx, th.ID, externalMessage("thanks"))
	require.NoError(t, err)
	assert.Equal(t, models.ThreadActive, th.Status)
}

func TestStore_Reply_IncrementsRecipientCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, th.UnreadInternal)

	th, err = store.Reply(ctx, th.ID, externalMessage("more details"))
	require.NoError(t, err)
	assert.Equal(t, 2, th.UnreadInternal)
	assert.Equal(t, 0, th.UnreadExternal)

	th, err = store.Reply(ctx, th.ID, internalMessage("received"))
	require.NoError(t, err)
	assert.Equal(t, 1, th.UnreadExternal)
	assert.Equal(t, 2, th.UnreadInternal, "the author's own side is untouched")
}

func TestStore_Reply_TruncatesPreview(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("x", 500)
	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage(long))
	require.NoError(t, err)

	assert.Len(t, th.LastMessagePreview, previewLength)
}

func TestStore_Preview_KeepsRuneBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 200 two-byte runes; a byte cut at 120 would land mid-rune.
	long := strings.Repeat("é", 200)
	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage(long))
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(th.LastMessagePreview))
	assert.NotEmpty(t, th.LastMessagePreview)
	assert.LessOrEqual(t, len(th.LastMessagePreview), previewLength)
}

func TestStore_RejectsUnknownAuthorSide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bad := MessageInput{AuthorIdentity: "fam-a", AuthorSide: "sideways", Text: "hello"}

	_, err := store.Open(ctx, "fam-a", "administration", "", bad)
	assert.True(t, apperrors.IsValidation(err))

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)

	_, err = store.Reply(ctx, th.ID, bad)
	assert.True(t, apperrors.IsValidation(err))

	msgs, err := store.Messages(ctx, th.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "a rejected reply leaves no message behind")
}

// ==========================
// Close / Reassign / MarkRead
// ==========================

func TestStore_Close_IsTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)

	th, err = store.Close(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadClosed, th.Status)

	_, err = store.Reply(ctx, th.ID, internalMessage("too late"))
	require.Error(t, err)
	assert.True(t, apperrors.IsThreadClosed(err))
}

func TestStore_Close_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)

	first, err := store.Close(ctx, th.ID)
	require.NoError(t, err)
	second, err := store.Close(ctx, th.ID)
	require.NoError(t, err)

	assert.Equal(t, first.LastTransitionAt, second.LastTransitionAt)
	assert.Equal(t, models.ThreadClosed, second.Status)
}

func TestStore_Reassign_RoutingOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)
	before := th.LastTransitionAt

	th, err = store.Reassign(ctx, th.ID, "pedagogy")
	require.NoError(t, err)

	assert.Equal(t, "pedagogy", th.TargetArea)
	assert.Equal(t, models.ThreadPending, th.Status, "status untouched")
	assert.Equal(t, 1, th.UnreadInternal, "counters untouched")
	assert.Equal(t, before, th.LastTransitionAt, "not a lifecycle transition")
}

func TestStore_MarkRead_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)

	require.NoError(t, store.MarkRead(ctx, th.ID, models.SideInternal))
	require.NoError(t, store.MarkRead(ctx, th.ID, models.SideInternal))

	got, err := store.repo.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadInternal)
}

func TestStore_MarkRead_SubsequentReplyReincrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)

	require.NoError(t, store.MarkRead(ctx, th.ID, models.SideInternal))

	th, err = store.Reply(ctx, th.ID, externalMessage("one more thing"))
	require.NoError(t, err)
	assert.Equal(t, 1, th.UnreadInternal)
}

func TestStore_Messages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	th, err := store.Open(ctx, "fam-a", "administration", "", externalMessage("hello"))
	require.NoError(t, err)
	_, err = store.Reply(ctx, th.ID, internalMessage("hi"))
	require.NoError(t, err)

	msgs, err := store.Messages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "hi", msgs[1].Text)

	_, err = store.Messages(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
