// Package model defines the domain types shared by the cache, sync and
// persistence layers: chats, messages and media payloads as they exist
// on the device, independent of any wire or storage representation.
package model

import "unicode/utf8"

// MessageStatus tracks a message through the send pipeline.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// User is the minimal profile of a chat counterpart.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Pivot holds the current user's membership metadata for a chat.
type Pivot struct {
	Muted      bool   `json:"muted"`
	LastReadAt int64  `json:"last_read_at"`
	Role       string `json:"role"`
}

// Chat is a conversation summary as shown in the chat list.
// LastActivityAt and timestamps are unix milliseconds.
type Chat struct {
	ID             int64    `json:"id"`
	OtherUser      User     `json:"other_user"`
	Pivot          Pivot    `json:"pivot"`
	UnreadCount    int      `json:"unread_count"`
	LastActivityAt int64    `json:"last_activity_at"`
	LastMessage    *Message `json:"last_message,omitempty"`
	DeletedAt      int64    `json:"-"`
}

// Message is a single chat message. IDs are server-assigned; until the
// server confirms an optimistic send, the client uses a temporary id
// from TempIDSource.
//
// FromMe is computed exactly once when the message enters the engine
// (ingestion or construction), never re-derived from SenderID afterward.
type Message struct {
	ID              int64         `json:"id"`
	ChatID          int64         `json:"chat_id"`
	SenderID        int64         `json:"sender_id"`
	Content         string        `json:"content"`
	Type            string        `json:"message_type"`
	MediaURL        string        `json:"media_url,omitempty"`
	MediaMime       string        `json:"media_mime,omitempty"`
	MediaDurationMs int           `json:"media_duration_ms,omitempty"`
	ReplyToID       int64         `json:"reply_to_message_id,omitempty"`
	Status          MessageStatus `json:"status"`
	IsEdited        bool          `json:"is_edited"`
	IsRead          bool          `json:"is_read"`
	SentAt          int64         `json:"sent_at"`
	FromMe          bool          `json:"-"`
	DeletedAt       int64         `json:"-"`
}

// Preview returns a short text suitable for a chat-list preview line,
// discriminating on the message's media payload.
func (m *Message) Preview() string {
	switch p := m.Media().(type) {
	case ImagePayload:
		return "[image]"
	case VoicePayload:
		return "[voice]"
	case FilePayload:
		return "[file]"
	case TextPayload:
		return truncate(p.Content, 100)
	}
	return truncate(m.Content, 100)
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
