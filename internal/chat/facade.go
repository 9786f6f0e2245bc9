// Package chat implements the UI-facing facade over the cache tiers:
// in-memory windows and chat list first, then the persistent store,
// then the remote API, with optimistic local mutations reconciled
// against server-confirmed state.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/cache"
	"chatsync/internal/coalesce"
	"chatsync/internal/model"
	"chatsync/internal/netstate"
	"chatsync/internal/remote"
	"chatsync/internal/store"
	"chatsync/internal/syncer"
	"chatsync/internal/window"
	"go.uber.org/zap"
)

// Facade orchestrates chat and message access for the UI layer. It owns
// every cache; callers never mutate cache state directly. Constructed
// once at startup and passed explicitly wherever needed.
type Facade struct {
	userID   int64
	pageSize int

	db      *store.DB
	remote  remote.Source
	windows *window.Registry
	list    *cache.ChatList
	group   *coalesce.Group
	syncer  *syncer.Engine
	net     *netstate.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	temps   *model.TempIDSource

	mu       sync.Mutex
	nextPage map[int64]int
}

// Params collects the facade's collaborators.
type Params struct {
	UserID   int64
	PageSize int

	DB      *store.DB
	Remote  remote.Source
	Windows *window.Registry
	List    *cache.ChatList
	Group   *coalesce.Group
	Syncer  *syncer.Engine
	Net     *netstate.Machine
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// New creates the facade.
func New(p Params) *Facade {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Facade{
		userID:   p.UserID,
		pageSize: pageSize,
		db:       p.DB,
		remote:   p.Remote,
		windows:  p.Windows,
		list:     p.List,
		group:    p.Group,
		syncer:   p.Syncer,
		net:      p.Net,
		bus:      p.Bus,
		logger:   logger,
		temps:    model.NewTempIDSource(),
		nextPage: make(map[int64]int),
	}
}

// ingest stamps a remote message with the once-computed FromMe flag.
func (f *Facade) ingest(m model.Message) model.Message {
	m.FromMe = m.SenderID == f.userID
	return m
}

func (f *Facade) ingestAll(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = f.ingest(m)
	}
	return out
}

func (f *Facade) ingestChats(chats []model.Chat) []model.Chat {
	out := make([]model.Chat, len(chats))
	for i, c := range chats {
		if c.LastMessage != nil {
			lm := f.ingest(*c.LastMessage)
			c.LastMessage = &lm
		}
		out[i] = c
	}
	return out
}

// reportRemote feeds a remote call outcome into the connectivity machine.
func (f *Facade) reportRemote(err error) {
	var statusErr *remote.StatusError
	switch {
	case err == nil:
		f.net.ReportSuccess()
	case remote.IsUnavailable(err):
		f.net.ReportUnavailable()
	case errors.As(err, &statusErr):
		f.net.ReportRejected()
	}
}

// Chats returns the chat list: fresh cache, else remote, else store.
// Pure connectivity problems never surface as errors on this read path;
// the worst case is an empty-but-successful result.
func (f *Facade) Chats(ctx context.Context, forceRefresh bool) ([]model.Chat, error) {
	if !forceRefresh {
		if chats, ok := f.list.Get(); ok {
			return chats, nil
		}
	}

	if !f.net.Online() {
		return f.chatsFromStore(), nil
	}

	chats, err := coalesce.Do(f.group, coalesce.ChatListKey(1), func() ([]model.Chat, error) {
		page, err := f.remote.ListChats(ctx, 1, f.pageSize)
		if err != nil {
			return nil, err
		}
		return f.ingestChats(page.Chats), nil
	})
	f.reportRemote(err)
	if err != nil {
		f.logger.Warn("chat list fetch failed, falling back to store", zap.Error(err))
		return f.chatsFromStore(), nil
	}

	f.list.Set(chats)
	go func() {
		if err := f.db.UpsertChats(chats); err != nil {
			f.logger.Error("failed to persist chat list", zap.Error(err))
		}
	}()
	f.bus.Publish(bus.Event{Kind: bus.KindChatListUpdated, Payload: len(chats)})
	return f.list.Peek(), nil
}

func (f *Facade) chatsFromStore() []model.Chat {
	chats, err := f.db.ListChats(f.pageSize, 0)
	if err != nil {
		f.logger.Error("failed to read chats from store", zap.Error(err))
		return []model.Chat{}
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	return chats
}

// Chat returns one chat from cache, store, then remote. A chat absent
// everywhere yields (nil, nil), not an error.
func (f *Facade) Chat(ctx context.Context, chatID int64) (*model.Chat, error) {
	for _, c := range f.list.Peek() {
		if c.ID == chatID {
			chat := c
			return &chat, nil
		}
	}
	c, err := f.db.GetChat(chatID)
	if err != nil {
		f.logger.Error("failed to read chat from store", zap.Error(err))
	}
	if c != nil {
		return c, nil
	}
	if !f.net.Online() {
		return nil, nil
	}
	detail, err := f.fetchDetail(ctx, chatID, 1)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, nil
		}
		return nil, nil
	}
	chat := detail.Chat
	return &chat, nil
}

// Messages returns the chat's message window, newest first, loading the
// initial page on first access. An empty chat is not an error.
func (f *Facade) Messages(ctx context.Context, chatID int64) ([]model.Message, error) {
	w := f.windows.GetOrCreate(chatID)
	if w.Len() > 0 {
		return w.Messages(), nil
	}
	if err := f.loadInitial(ctx, chatID, w); err != nil {
		return nil, err
	}
	return w.Messages(), nil
}

func (f *Facade) loadInitial(ctx context.Context, chatID int64, w *window.Window) error {
	if !f.net.Online() {
		f.backfillFromStore(chatID, w, 0)
		return nil
	}

	detail, err := f.fetchDetail(ctx, chatID, 1)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		f.logger.Warn("initial message fetch failed, falling back to store",
			zap.Error(err), zap.Int64("chat_id", chatID))
		f.backfillFromStore(chatID, w, 0)
		return nil
	}

	msgs := f.ingestAll(detail.Messages)
	w.AppendOlder(msgs, detail.Pagination.HasMore())
	f.setNextPage(chatID, 2)

	go f.persistPage(chatID, detail.Chat, msgs)
	return nil
}

// LoadOlder backfills the next page of history at the window's tail.
func (f *Facade) LoadOlder(ctx context.Context, chatID int64) error {
	w := f.windows.GetOrCreate(chatID)
	if w.Len() == 0 {
		return f.loadInitial(ctx, chatID, w)
	}
	if !w.HasMore() {
		return nil
	}

	if !f.net.Online() {
		f.backfillFromStore(chatID, w, w.OldestID())
		return nil
	}

	page := f.getNextPage(chatID)
	detail, err := f.fetchDetail(ctx, chatID, page)
	if err != nil {
		f.logger.Warn("pagination fetch failed, falling back to store",
			zap.Error(err), zap.Int64("chat_id", chatID))
		f.backfillFromStore(chatID, w, w.OldestID())
		return nil
	}

	msgs := f.ingestAll(detail.Messages)
	w.AppendOlder(msgs, detail.Pagination.HasMore())
	f.setNextPage(chatID, page+1)

	go f.persistPage(chatID, detail.Chat, msgs)
	return nil
}

// Preload backfills ahead of the scroll position when the window is
// close to exhausted. No-op while a preload is already running.
func (f *Facade) Preload(ctx context.Context, chatID int64, currentScrollIndex int) {
	w := f.windows.GetOrCreate(chatID)
	if !w.ShouldPreload(currentScrollIndex) {
		return
	}
	w.SetPreloading(true)
	go func() {
		defer w.SetPreloading(false)
		if err := f.LoadOlder(ctx, chatID); err != nil {
			f.logger.Warn("preload failed", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}()
}

func (f *Facade) fetchDetail(ctx context.Context, chatID int64, page int) (*remote.ChatDetail, error) {
	detail, err := coalesce.Do(f.group, coalesce.ChatDetailKey(chatID, page), func() (*remote.ChatDetail, error) {
		return f.remote.GetChatDetail(ctx, chatID, page, f.pageSize)
	})
	f.reportRemote(err)
	return detail, err
}

func (f *Facade) backfillFromStore(chatID int64, w *window.Window, beforeID int64) {
	var msgs []model.Message
	var err error
	if beforeID == 0 {
		msgs, err = f.db.GetInitialMessages(chatID, f.pageSize)
	} else {
		msgs, err = f.db.GetMessagesBefore(chatID, beforeID, f.pageSize)
	}
	if err != nil {
		f.logger.Error("failed to read messages from store", zap.Error(err), zap.Int64("chat_id", chatID))
		return
	}
	w.AppendOlder(msgs, len(msgs) == f.pageSize)
}

func (f *Facade) persistPage(chatID int64, c model.Chat, msgs []model.Message) {
	if c.ID != 0 {
		if err := f.db.UpsertChat(&c); err != nil {
			f.logger.Error("failed to persist chat", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}
	if len(msgs) == 0 {
		return
	}
	if err := f.db.UpsertMessages(chatID, msgs); err != nil {
		f.logger.Error("failed to persist messages", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (f *Facade) getNextPage(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.nextPage[chatID]; ok {
		return p
	}
	return 2
}

func (f *Facade) setNextPage(chatID int64, page int) {
	f.mu.Lock()
	f.nextPage[chatID] = page
	f.mu.Unlock()
}

// RefreshChatList forces a chat list refresh. Scheduler entry point.
func (f *Facade) RefreshChatList(ctx context.Context) error {
	_, err := f.Chats(ctx, true)
	return err
}

// ChatListStale reports whether the cached list is past its TTL.
func (f *Facade) ChatListStale() bool {
	return !f.list.Fresh()
}

// WarmChat populates an empty message window during idle periods.
func (f *Facade) WarmChat(ctx context.Context, chatID int64) error {
	w := f.windows.GetOrCreate(chatID)
	if w.Len() > 0 {
		return nil
	}
	return f.loadInitial(ctx, chatID, w)
}

// TopChats returns the n most recently active chat ids, from the cached
// list or the store.
func (f *Facade) TopChats(n int) []int64 {
	if ids := f.list.TopChats(n); len(ids) > 0 {
		return ids
	}
	chats, err := f.db.ListChats(n, 0)
	if err != nil {
		f.logger.Error("failed to read top chats from store", zap.Error(err))
		return nil
	}
	ids := make([]int64, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	return ids
}

// now is separated for tests.
func (f *Facade) nowMilli() int64 {
	return time.Now().UnixMilli()
}
