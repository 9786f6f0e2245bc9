// Package scheduler owns the engine's background timers: the periodic
// sync tick, debounced on-demand syncs, and idle-triggered cache
// warming. Every timer handle lives in the scheduler's own state so
// shutdown can clear them all.
package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Syncer is the slice of the sync engine the scheduler drives.
type Syncer interface {
	Sync(ctx context.Context, chatID int64) error
	Stale(chatID int64, maxAge time.Duration) bool
}

// Facade is the slice of the chat facade the scheduler drives.
type Facade interface {
	RefreshChatList(ctx context.Context) error
	ChatListStale() bool
	WarmChat(ctx context.Context, chatID int64) error
	TopChats(n int) []int64
}

// Windows enumerates the chats with an active in-memory cache.
type Windows interface {
	ChatIDs() []int64
}

// Config holds the scheduler's timing knobs.
type Config struct {
	SyncInterval    time.Duration
	IdleThreshold   time.Duration
	IdleCheckPeriod time.Duration
	ChatDebounce    time.Duration
	ListDebounce    time.Duration
	WarmTopChats    int
}

// Scheduler runs the background loops. All errors from driven work are
// logged, never propagated: one chat's failure must not halt others.
type Scheduler struct {
	cfg     Config
	syncer  Syncer
	facade  Facade
	windows Windows
	logger  *zap.Logger

	mu           sync.Mutex
	lastActivity time.Time
	idle         bool
	warming      bool
	debounce     map[string]*time.Timer
	stopped      bool

	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a scheduler. Start must be called before it does anything.
func New(cfg Config, s Syncer, f Facade, w Windows, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		syncer:   s,
		facade:   f,
		windows:  w,
		logger:   logger,
		debounce: make(map[string]*time.Timer),
		now:      time.Now,
	}
}

// Start launches the periodic and idle loops.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.MarkActivity(s.now())
	go s.syncLoop(ctx)
	go s.idleLoop(ctx)
}

// Stop cancels future runs and clears every pending debounce timer.
// In-flight operations are not interrupted; only scheduling is
// cancellable.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.debounce {
		t.Stop()
		delete(s.debounce, key)
	}
	s.mu.Unlock()
}

// MarkActivity records foreground activity. Wired to the request
// coalescer so any fetch counts; flips the idle flag off, which also
// aborts a warming loop between chats.
func (s *Scheduler) MarkActivity(t time.Time) {
	s.mu.Lock()
	if t.After(s.lastActivity) {
		s.lastActivity = t
	}
	s.idle = false
	s.mu.Unlock()
}

// IsIdle reports whether the app has been quiet past the idle threshold.
func (s *Scheduler) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// RequestChatSync schedules a debounced sync for one chat. Bursts of
// requests inside the debounce window produce a single sync call.
func (s *Scheduler) RequestChatSync(ctx context.Context, chatID int64) {
	s.debounced("chat:"+strconv.FormatInt(chatID, 10), s.cfg.ChatDebounce, func() {
		if err := s.syncer.Sync(ctx, chatID); err != nil {
			s.logger.Warn("debounced chat sync failed", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	})
}

// RequestListRefresh schedules a debounced chat list refresh.
func (s *Scheduler) RequestListRefresh(ctx context.Context) {
	s.debounced("list", s.cfg.ListDebounce, func() {
		if err := s.facade.RefreshChatList(ctx); err != nil {
			s.logger.Warn("debounced list refresh failed", zap.Error(err))
		}
	})
}

// debounced runs fn once per key per window: the first request arms the
// timer, later ones inside the window coalesce into it.
func (s *Scheduler) debounced(key string, window time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, armed := s.debounce[key]; armed {
		return
	}
	s.debounce[key] = time.AfterFunc(window, func() {
		s.mu.Lock()
		delete(s.debounce, key)
		s.mu.Unlock()
		fn()
	})
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick fires one periodic pass: every chat with a stale window gets a
// fire-and-forget sync, and a stale chat list gets a debounced refresh.
func (s *Scheduler) tick(ctx context.Context) {
	for _, chatID := range s.windows.ChatIDs() {
		if !s.syncer.Stale(chatID, s.cfg.SyncInterval) {
			continue
		}
		go func(id int64) {
			if err := s.syncer.Sync(ctx, id); err != nil {
				s.logger.Warn("periodic sync failed", zap.Error(err), zap.Int64("chat_id", id))
			}
		}(chatID)
	}
	if s.facade.ChatListStale() {
		s.RequestListRefresh(ctx)
	}
}

func (s *Scheduler) idleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.IdleCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkIdle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) checkIdle(ctx context.Context) {
	s.mu.Lock()
	quiet := s.now().Sub(s.lastActivity) > s.cfg.IdleThreshold
	startWarming := false
	if quiet && !s.idle {
		s.idle = true
		if !s.warming {
			s.warming = true
			startWarming = true
		}
	}
	s.mu.Unlock()

	if startWarming {
		go s.warm(ctx)
	}
}

// warm populates the most recent chats' message caches sequentially,
// not in parallel, so a resuming user never competes with a burst of
// warming fetches. The idle flag is checked between chats; it is the
// only cancellation point.
func (s *Scheduler) warm(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.warming = false
		s.mu.Unlock()
	}()

	for _, chatID := range s.facade.TopChats(s.cfg.WarmTopChats) {
		if ctx.Err() != nil || !s.IsIdle() {
			return
		}
		if err := s.facade.WarmChat(ctx, chatID); err != nil {
			s.logger.Warn("cache warming failed", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}
}

