// internal/models/thread.go
package models

import "time"

// ThreadStatus is the derived status of a conversation thread.
type ThreadStatus string

const (
	ThreadPending   ThreadStatus = "pending"
	ThreadResponded ThreadStatus = "responded"
	ThreadActive    ThreadStatus = "active"
	ThreadClosed    ThreadStatus = "closed"
)

// Side identifies which end of a thread authored a message: the external
// party (family, applicant) or the internal organizational area (staff).
type Side string

const (
	SideExternal Side = "external"
	SideInternal Side = "internal"
)

// Opposite returns the other side of a conversation.
func (s Side) Opposite() Side {
	if s == SideExternal {
		return SideInternal
	}
	return SideExternal
}

// ConversationThread is a private channel between one external party and one
// internal organizational area. Status is a pure function of (last author
// side, whether the internal side has ever replied, Closed); Closed is
// terminal.
type ConversationThread struct {
	ID           string `json:"id"`
	SubjectParty string `json:"subjectParty"`
	TargetArea   string `json:"targetArea"`
	Category     string `json:"category,omitempty"`

	Closed          bool `json:"closed"`
	InternalReplied bool `json:"internalReplied"`

	Status ThreadStatus `json:"status"`

	UnreadExternal int `json:"unreadExternal"`
	UnreadInternal int `json:"unreadInternal"`

	LastMessageSide    Side      `json:"lastMessageAuthorSide"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`

	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	LastTransitionAt time.Time `json:"lastTransitionAt"`
}

// Unread returns the unread counter for the given side.
func (t *ConversationThread) Unread(side Side) int {
	if side == SideExternal {
		return t.UnreadExternal
	}
	return t.UnreadInternal
}

// Message is a single immutable entry in a conversation thread.
type Message struct {
	ID             string    `json:"id"`
	ThreadID       string    `json:"threadId"`
	AuthorIdentity string    `json:"authorIdentity"`
	AuthorSide     Side      `json:"authorSide"`
	Text           string    `json:"text"`
	Attachments    []string  `json:"attachments,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
