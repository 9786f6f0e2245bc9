// Package syncer implements per-chat differential synchronization:
// fetching only messages newer than a checkpoint and reconciling them
// with pending local mutations that the server has not confirmed yet.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/model"
	"chatsync/internal/remote"
	"chatsync/internal/store"
	"chatsync/internal/window"
	"go.uber.org/zap"
)

// chatState is the reconciliation state of one chat. Created lazily on
// first sync or local mutation, reset after a successful cycle.
type chatState struct {
	lastSyncAt       int64
	checkpointLoaded bool
	pendingDeletes   map[int64]struct{}
	pendingEdits     map[int64]model.Message
	syncInProgress   bool
}

// Engine drives the Idle -> Syncing -> Idle cycle for every chat. At
// most one sync per chat runs at a time; concurrent calls while one is
// in flight are no-ops.
type Engine struct {
	mu     sync.Mutex
	states map[int64]*chatState

	remote  remote.Source
	db      *store.DB
	windows *window.Registry
	bus     *bus.Bus
	logger  *zap.Logger
	userID  int64
	now     func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(src remote.Source, db *store.DB, windows *window.Registry, b *bus.Bus, logger *zap.Logger, userID int64) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		states:  make(map[int64]*chatState),
		remote:  src,
		db:      db,
		windows: windows,
		bus:     b,
		logger:  logger,
		userID:  userID,
		now:     time.Now,
	}
}

func (e *Engine) stateFor(chatID int64) *chatState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[chatID]
	if !ok {
		st = &chatState{
			pendingDeletes: make(map[int64]struct{}),
			pendingEdits:   make(map[int64]model.Message),
		}
		e.states[chatID] = st
	}
	return st
}

// QueueDelete records a locally deleted message to be reconciled on the
// next cycle. The entry survives failed cycles: the UI already
// committed the delete, losing it would silently revert the user.
func (e *Engine) QueueDelete(chatID, messageID int64) {
	st := e.stateFor(chatID)
	e.mu.Lock()
	st.pendingDeletes[messageID] = struct{}{}
	e.mu.Unlock()
}

// QueueEdit records a locally edited message to be reconciled on the
// next cycle.
func (e *Engine) QueueEdit(chatID int64, m model.Message) {
	st := e.stateFor(chatID)
	e.mu.Lock()
	st.pendingEdits[m.ID] = m
	e.mu.Unlock()
}

// Stale reports whether the chat's last successful sync is older than
// maxAge.
func (e *Engine) Stale(chatID int64, maxAge time.Duration) bool {
	st := e.stateFor(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now().UnixMilli()-st.lastSyncAt >= maxAge.Milliseconds()
}

// Sync runs one reconciliation cycle for a chat. Calling it while a
// cycle is already in flight returns immediately with no remote call.
// Pending mutations and the checkpoint are only touched on success.
func (e *Engine) Sync(ctx context.Context, chatID int64) error {
	st := e.stateFor(chatID)

	e.mu.Lock()
	if st.syncInProgress {
		e.mu.Unlock()
		return nil
	}
	st.syncInProgress = true
	loaded := st.checkpointLoaded
	since := st.lastSyncAt
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		st.syncInProgress = false
		e.mu.Unlock()
	}()

	if !loaded {
		ts, err := e.db.LastSync(chatID)
		if err != nil {
			e.logger.Warn("failed to load sync checkpoint", zap.Error(err), zap.Int64("chat_id", chatID))
		} else {
			e.mu.Lock()
			if ts > st.lastSyncAt {
				st.lastSyncAt = ts
			}
			st.checkpointLoaded = true
			since = st.lastSyncAt
			e.mu.Unlock()
		}
	}

	msgs, err := e.remote.MessagesSince(ctx, chatID, since)
	if err != nil {
		return fmt.Errorf("delta fetch chat %d: %w", chatID, err)
	}

	w := e.windows.GetOrCreate(chatID)
	for _, m := range msgs {
		m.FromMe = m.SenderID == e.userID
		w.InsertNewest(m)
	}
	// Persistence failures never block in-memory state (the store can
	// be rebuilt from the next fetch), so log and continue.
	if len(msgs) > 0 {
		if err := e.db.UpsertMessages(chatID, msgs); err != nil {
			e.logger.Error("failed to persist delta batch", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}

	if err := e.applyPending(st, chatID, w); err != nil {
		return err
	}

	now := e.now().UnixMilli()
	e.mu.Lock()
	st.lastSyncAt = now
	e.mu.Unlock()
	if err := e.db.SetLastSync(chatID, now); err != nil {
		e.logger.Error("failed to persist sync checkpoint", zap.Error(err), zap.Int64("chat_id", chatID))
	}

	e.bus.Publish(bus.Event{
		Kind: bus.KindSyncCycle,
		Payload: map[string]int64{
			"chat_id":  chatID,
			"fetched":  int64(len(msgs)),
			"until_ms": now,
		},
	})
	return nil
}

// applyPending re-applies queued local mutations over the fresh delta.
// Only the snapshotted entries are cleared, and each only after it was
// applied: a mutation queued while this runs stays in its queue for the
// next cycle instead of being wiped unapplied.
func (e *Engine) applyPending(st *chatState, chatID int64, w *window.Window) error {
	e.mu.Lock()
	deletes := make([]int64, 0, len(st.pendingDeletes))
	for id := range st.pendingDeletes {
		deletes = append(deletes, id)
	}
	edits := make([]model.Message, 0, len(st.pendingEdits))
	for _, m := range st.pendingEdits {
		edits = append(edits, m)
	}
	e.mu.Unlock()

	for _, id := range deletes {
		w.Remove(id)
		if err := e.db.MarkDeleted(id); err != nil {
			return fmt.Errorf("apply pending delete %d: %w", id, err)
		}
	}
	e.mu.Lock()
	for _, id := range deletes {
		delete(st.pendingDeletes, id)
	}
	e.mu.Unlock()

	for _, m := range edits {
		w.Update(m)
		if err := e.db.UpsertMessage(&m); err != nil {
			return fmt.Errorf("apply pending edit %d: %w", m.ID, err)
		}
	}
	e.mu.Lock()
	for _, m := range edits {
		// A newer edit for the same id queued mid-cycle must not be
		// dropped with the one that was applied.
		if cur, ok := st.pendingEdits[m.ID]; ok && cur == m {
			delete(st.pendingEdits, m.ID)
		}
	}
	e.mu.Unlock()

	return nil
}

// PendingDeletes returns a snapshot of a chat's queued deletes.
func (e *Engine) PendingDeletes(chatID int64) []int64 {
	st := e.stateFor(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(st.pendingDeletes))
	for id := range st.pendingDeletes {
		ids = append(ids, id)
	}
	return ids
}

// PendingEdits returns a snapshot of a chat's queued edits.
func (e *Engine) PendingEdits(chatID int64) []model.Message {
	st := e.stateFor(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := make([]model.Message, 0, len(st.pendingEdits))
	for _, m := range st.pendingEdits {
		msgs = append(msgs, m)
	}
	return msgs
}
