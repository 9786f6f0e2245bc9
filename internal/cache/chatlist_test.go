package cache

import (
	"testing"
	"time"

	"chatsync/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTTLGate(t *testing.T) {
	c := NewChatList(5 * time.Minute)
	base := time.Unix(1700000000, 0)
	c.SetClock(fixedClock(base))

	// Empty cache is never fresh.
	if _, ok := c.Get(); ok {
		t.Fatal("empty cache reported fresh")
	}

	c.Set([]model.Chat{{ID: 1}})

	// t = 4min: hit.
	c.SetClock(fixedClock(base.Add(4 * time.Minute)))
	if _, ok := c.Get(); !ok {
		t.Error("cache miss at t=4min, want hit inside TTL")
	}

	// t = 6min: stale.
	c.SetClock(fixedClock(base.Add(6 * time.Minute)))
	if _, ok := c.Get(); ok {
		t.Error("cache hit at t=6min, want miss past TTL")
	}

	// Stale data still peekable for fallbacks.
	if got := c.Peek(); len(got) != 1 {
		t.Errorf("Peek() = %v, want stale data retained", got)
	}
}

func TestInvalidate(t *testing.T) {
	c := NewChatList(5 * time.Minute)
	c.Set([]model.Chat{{ID: 1}})
	c.Invalidate()

	if _, ok := c.Get(); ok {
		t.Error("cache fresh after Invalidate")
	}
	if len(c.Peek()) != 1 {
		t.Error("Invalidate dropped the data")
	}
}

func TestTouchOnNewMessage(t *testing.T) {
	c := NewChatList(time.Minute)
	c.Set([]model.Chat{
		{ID: 1, LastActivityAt: 1000, UnreadCount: 0},
		{ID: 2, LastActivityAt: 2000, UnreadCount: 0},
	})

	// Incoming message on chat 1 moves it to the top and bumps unread.
	c.TouchOnNewMessage(1, model.Message{ID: 9, ChatID: 1, SentAt: 3000, Content: "hi"})

	chats := c.Peek()
	if chats[0].ID != 1 {
		t.Errorf("top chat = %d, want 1", chats[0].ID)
	}
	if chats[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", chats[0].UnreadCount)
	}
	if chats[0].LastMessage == nil || chats[0].LastMessage.ID != 9 {
		t.Errorf("last message = %+v", chats[0].LastMessage)
	}
}

func TestTouchOwnMessageNoUnreadBump(t *testing.T) {
	c := NewChatList(time.Minute)
	c.Set([]model.Chat{{ID: 1, LastActivityAt: 1000}})

	c.TouchOnNewMessage(1, model.Message{ID: 9, ChatID: 1, SentAt: 3000, FromMe: true})

	if got := c.Peek()[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0 for own message", got)
	}
}

func TestSortTieBreaksOnHigherID(t *testing.T) {
	c := NewChatList(time.Minute)
	c.Set([]model.Chat{
		{ID: 3, LastActivityAt: 1000},
		{ID: 7, LastActivityAt: 1000},
		{ID: 5, LastActivityAt: 2000},
	})

	chats := c.Peek()
	want := []int64{5, 7, 3}
	for i := range want {
		if chats[i].ID != want[i] {
			t.Fatalf("order = [%d %d %d], want %v", chats[0].ID, chats[1].ID, chats[2].ID, want)
		}
	}
}

func TestResetUnread(t *testing.T) {
	c := NewChatList(time.Minute)
	c.Set([]model.Chat{{ID: 1, UnreadCount: 4}})
	c.ResetUnread(1)
	if got := c.Peek()[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestTopChats(t *testing.T) {
	c := NewChatList(time.Minute)
	c.Set([]model.Chat{
		{ID: 1, LastActivityAt: 1000},
		{ID: 2, LastActivityAt: 3000},
		{ID: 3, LastActivityAt: 2000},
	})

	top := c.TopChats(2)
	if len(top) != 2 || top[0] != 2 || top[1] != 3 {
		t.Errorf("TopChats(2) = %v, want [2 3]", top)
	}
	if got := c.TopChats(10); len(got) != 3 {
		t.Errorf("TopChats(10) = %v, want all 3", got)
	}
}
