// Package cache holds the TTL-gated in-memory chat list. It is a
// disposable projection: the store and the remote API can always
// rebuild it.
package cache

import (
	"sort"
	"sync"
	"time"

	"chatsync/internal/model"
)

// ChatList caches the chat summary sequence with a fetch timestamp.
// The clock is injectable for tests.
type ChatList struct {
	mu        sync.Mutex
	chats     []model.Chat
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewChatList creates an empty cache with the given TTL.
func NewChatList(ttl time.Duration) *ChatList {
	return &ChatList{ttl: ttl, now: time.Now}
}

// SetClock replaces the cache's clock. Test hook.
func (c *ChatList) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Fresh reports whether the cached list is still inside its TTL.
func (c *ChatList) Fresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshLocked()
}

func (c *ChatList) freshLocked() bool {
	return !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl
}

// Get returns the cached list and whether it was a fresh hit.
func (c *ChatList) Get() ([]model.Chat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.freshLocked() {
		return nil, false
	}
	return c.copyLocked(), true
}

// Peek returns whatever is cached regardless of freshness.
func (c *ChatList) Peek() []model.Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Set replaces the cached list and stamps fetchedAt.
func (c *ChatList) Set(chats []model.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = make([]model.Chat, len(chats))
	copy(c.chats, chats)
	sortChats(c.chats)
	c.fetchedAt = c.now()
}

// Invalidate drops the freshness stamp without discarding data, so the
// stale list can still serve as a fallback.
func (c *ChatList) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// TouchOnNewMessage updates a chat's last message and activity, bumps
// the unread count when the message is someone else's, and re-sorts.
// Unknown chats are ignored; the next list refresh will pick them up.
func (c *ChatList) TouchOnNewMessage(chatID int64, m model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.chats {
		if c.chats[i].ID != chatID {
			continue
		}
		msg := m
		c.chats[i].LastMessage = &msg
		c.chats[i].LastActivityAt = m.SentAt
		if !m.FromMe {
			c.chats[i].UnreadCount++
		}
		sortChats(c.chats)
		return
	}
}

// UpdateLastMessage rewrites a chat's last message without touching
// unread counts (edits, deletes).
func (c *ChatList) UpdateLastMessage(chatID int64, m *model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			c.chats[i].LastMessage = m
			return
		}
	}
}

// ResetUnread clears a chat's unread count.
func (c *ChatList) ResetUnread(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			c.chats[i].UnreadCount = 0
			return
		}
	}
}

// TopChats returns up to n most recently active chat ids.
func (c *ChatList) TopChats(n int) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.chats) {
		n = len(c.chats)
	}
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, c.chats[i].ID)
	}
	return ids
}

func (c *ChatList) copyLocked() []model.Chat {
	out := make([]model.Chat, len(c.chats))
	copy(out, c.chats)
	return out
}

// sortChats orders by last activity descending; ties break on higher
// chat id first so same-timestamp messages keep a deterministic order.
func sortChats(chats []model.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].LastActivityAt != chats[j].LastActivityAt {
			return chats[i].LastActivityAt > chats[j].LastActivityAt
		}
		return chats[i].ID > chats[j].ID
	})
}
