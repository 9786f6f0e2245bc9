// Package remote defines the abstract chat API the engine syncs against
// and its HTTP/JSON client implementation.
package remote

import (
	"context"

	"chatsync/internal/model"
)

// Pagination is the server's page metadata.
type Pagination struct {
	Total       int `json:"total"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

// HasMore reports whether pages beyond the current one exist.
func (p Pagination) HasMore() bool {
	return p.CurrentPage < p.LastPage
}

// ChatPage is one page of the chat list.
type ChatPage struct {
	Chats      []model.Chat `json:"chats"`
	Pagination Pagination   `json:"pagination"`
}

// ChatDetail is a chat plus one page of its message history.
type ChatDetail struct {
	Chat       model.Chat      `json:"chat"`
	Messages   []model.Message `json:"messages"`
	Pagination Pagination      `json:"pagination"`
}

// Draft is an outgoing message before the server assigns an id.
// ClientRef is an idempotency key so a retried send cannot duplicate.
type Draft struct {
	Content   string `json:"content"`
	Type      string `json:"message_type"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaData string `json:"media_data,omitempty"`
	ReplyToID int64  `json:"reply_to_message_id,omitempty"`
	ClientRef string `json:"client_ref,omitempty"`
}

// Source is the abstract network API for chat and message operations.
type Source interface {
	ListChats(ctx context.Context, page, pageSize int) (*ChatPage, error)
	GetChatDetail(ctx context.Context, chatID int64, page, pageSize int) (*ChatDetail, error)
	MessagesSince(ctx context.Context, chatID int64, since int64) ([]model.Message, error)
	SendMessage(ctx context.Context, chatID int64, draft Draft) (*model.Message, error)
	EditMessage(ctx context.Context, chatID, messageID int64, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	MarkMessagesRead(ctx context.Context, chatID int64, messageIDs []int64) error
}
