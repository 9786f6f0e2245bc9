// Package coalesce deduplicates concurrent identical fetches: callers
// asking for the same chat/page while a request is in flight share its
// result instead of issuing another network call.
package coalesce

import (
	"fmt"
	"sync"
	"time"
)

// Group tracks in-flight operations by key. Entries are removed
// unconditionally when the operation settles, success or failure, so a
// failed fetch can never poison the group.
type Group struct {
	mu         sync.Mutex
	inflight   map[string]*call
	onActivity func(time.Time)
}

type call struct {
	done chan struct{}
	val  any
	err  error
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{inflight: make(map[string]*call)}
}

// SetOnActivity installs a callback invoked whenever a new entry is
// created. The scheduler uses it to track foreground activity for idle
// detection. Guarded by the group mutex so installation after workers
// have started is safe.
func (g *Group) SetOnActivity(fn func(time.Time)) {
	g.mu.Lock()
	g.onActivity = fn
	g.mu.Unlock()
}

// Do executes fn under the given key. If an identical call is already
// in flight, Do waits for it and returns its result without invoking fn.
func (g *Group) Do(key string, fn func() (any, error)) (any, error) {
	g.mu.Lock()
	if c, ok := g.inflight[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err
	}
	c := &call{done: make(chan struct{})}
	g.inflight[key] = c
	onActivity := g.onActivity
	g.mu.Unlock()

	if onActivity != nil {
		onActivity(time.Now())
	}

	defer func() {
		g.mu.Lock()
		delete(g.inflight, key)
		g.mu.Unlock()
		close(c.done)
	}()

	c.val, c.err = fn()
	return c.val, c.err
}

// Inflight returns the number of keys currently in flight.
func (g *Group) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

// Do is the typed wrapper around Group.Do.
func Do[T any](g *Group, key string, fn func() (T, error)) (T, error) {
	v, err := g.Do(key, func() (any, error) { return fn() })
	if v == nil {
		var zero T
		return zero, err
	}
	return v.(T), err
}

// ChatListKey builds the request key for a chat list page.
func ChatListKey(page int) string {
	return fmt.Sprintf("chats:list:%d", page)
}

// ChatDetailKey builds the request key for a chat detail page.
func ChatDetailKey(chatID int64, page int) string {
	return fmt.Sprintf("chats:%d:page:%d", chatID, page)
}
