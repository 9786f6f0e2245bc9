package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/model"
	"chatsync/internal/remote"
	"chatsync/internal/store"
	"chatsync/internal/window"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeRemote implements remote.Source with a programmable delta fetch.
type fakeRemote struct {
	mu         sync.Mutex
	sinceCalls int
	sinceFn    func(chatID, since int64) ([]model.Message, error)
	block      chan struct{}
}

func (f *fakeRemote) MessagesSince(_ context.Context, chatID int64, since int64) ([]model.Message, error) {
	f.mu.Lock()
	f.sinceCalls++
	block := f.block
	fn := f.sinceFn
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if fn != nil {
		return fn(chatID, since)
	}
	return nil, nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinceCalls
}

func (f *fakeRemote) ListChats(context.Context, int, int) (*remote.ChatPage, error) {
	return &remote.ChatPage{}, nil
}
func (f *fakeRemote) GetChatDetail(context.Context, int64, int, int) (*remote.ChatDetail, error) {
	return &remote.ChatDetail{}, nil
}
func (f *fakeRemote) SendMessage(context.Context, int64, remote.Draft) (*model.Message, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRemote) EditMessage(context.Context, int64, int64, string) (*model.Message, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeRemote) DeleteMessage(context.Context, int64, int64) error  { return nil }
func (f *fakeRemote) MarkMessagesRead(context.Context, int64, []int64) error { return nil }

func newEngine(t *testing.T, src remote.Source) (*Engine, *window.Registry, *store.DB) {
	t.Helper()
	db := testDB(t)
	reg := window.NewRegistry(50, 10)
	e := NewEngine(src, db, reg, bus.New(), nil, 100)
	return e, reg, db
}

func TestSyncIngestsDelta(t *testing.T) {
	f := &fakeRemote{sinceFn: func(chatID, since int64) ([]model.Message, error) {
		return []model.Message{
			{ID: 1, ChatID: chatID, SenderID: 100, Content: "mine", SentAt: 1000},
			{ID: 2, ChatID: chatID, SenderID: 7, Content: "theirs", SentAt: 2000},
		}, nil
	}}
	e, reg, db := newEngine(t, f)

	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}

	w := reg.Get(5)
	if w == nil {
		t.Fatal("window never created")
	}
	if w.Len() != 2 {
		t.Fatalf("window len = %d, want 2", w.Len())
	}
	// FromMe computed once at ingestion.
	if m, _ := w.Get(1); !m.FromMe {
		t.Error("message 1 should be FromMe")
	}
	if m, _ := w.Get(2); m.FromMe {
		t.Error("message 2 should not be FromMe")
	}

	// Delta persisted.
	stored, err := db.GetInitialMessages(5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored = %d messages, want 2", len(stored))
	}

	// Checkpoint advanced and persisted.
	ts, _ := db.LastSync(5)
	if ts == 0 {
		t.Error("checkpoint not persisted after successful sync")
	}
}

func TestSyncDedupsReplays(t *testing.T) {
	f := &fakeRemote{sinceFn: func(chatID, since int64) ([]model.Message, error) {
		// Same delta every time, as an overlapping fetch would return.
		return []model.Message{{ID: 1, ChatID: chatID, SentAt: 1000}}, nil
	}}
	e, reg, _ := newEngine(t, f)

	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}

	if got := reg.Get(5).Len(); got != 1 {
		t.Errorf("window len = %d, want 1 (replay absorbed)", got)
	}
}

func TestAtMostOneSyncPerChat(t *testing.T) {
	f := &fakeRemote{block: make(chan struct{})}
	e, _, _ := newEngine(t, f)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.Sync(context.Background(), 5)
	}()

	// Wait for the first sync to be in flight.
	for f.calls() == 0 {
		time.Sleep(time.Millisecond)
	}

	// A second call while syncing is a no-op: no extra delta fetch.
	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if got := f.calls(); got != 1 {
		t.Errorf("delta fetches = %d, want 1", got)
	}

	close(f.block)
	wg.Wait()
}

func TestPendingDeletesSurviveFailure(t *testing.T) {
	fail := true
	f := &fakeRemote{sinceFn: func(chatID, since int64) ([]model.Message, error) {
		if fail {
			return nil, remote.ErrNetworkUnavailable
		}
		return nil, nil
	}}
	e, reg, db := newEngine(t, f)

	// Seed window and store with message 7.
	reg.GetOrCreate(5).InsertNewest(model.Message{ID: 7, ChatID: 5, SentAt: 1000})
	if err := db.UpsertMessages(5, []model.Message{{ID: 7, SentAt: 1000}}); err != nil {
		t.Fatal(err)
	}
	e.QueueDelete(5, 7)

	// Failed cycle: pending delete retained, checkpoint not advanced.
	if err := e.Sync(context.Background(), 5); err == nil {
		t.Fatal("Sync() = nil, want error from failed fetch")
	}
	if got := e.PendingDeletes(5); len(got) != 1 || got[0] != 7 {
		t.Fatalf("pendingDeletes = %v, want [7]", got)
	}
	if ts, _ := db.LastSync(5); ts != 0 {
		t.Errorf("checkpoint = %d, want 0 after failure", ts)
	}

	// Successful cycle removes message 7 and clears the set.
	fail = false
	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if got := e.PendingDeletes(5); len(got) != 0 {
		t.Errorf("pendingDeletes = %v, want empty", got)
	}
	if _, ok := reg.Get(5).Get(7); ok {
		t.Error("message 7 still in window after reconciled delete")
	}
	stored, _ := db.GetInitialMessages(5, 10)
	if len(stored) != 0 {
		t.Errorf("stored = %v, want tombstoned", stored)
	}
}

func TestDeleteQueuedMidCycleIsNotLost(t *testing.T) {
	// A delete queued while a cycle is applying its snapshot must either
	// be applied in that cycle or survive into the next one. Many queued
	// deletes widen the apply phase so the mid-cycle queue lands inside
	// it on at least some attempts.
	for attempt := 0; attempt < 3; attempt++ {
		e, reg, db := newEngine(t, &fakeRemote{})
		w := reg.GetOrCreate(5)

		for i := int64(1); i <= 300; i++ {
			w.InsertNewest(model.Message{ID: i, ChatID: 5, SentAt: i})
			e.QueueDelete(5, i)
		}
		const late = int64(9999)
		w.InsertNewest(model.Message{ID: late, ChatID: 5, SentAt: 10000})
		if err := db.UpsertMessages(5, []model.Message{{ID: late, SentAt: 10000}}); err != nil {
			t.Fatal(err)
		}

		done := make(chan error, 1)
		go func() { done <- e.Sync(context.Background(), 5) }()
		time.Sleep(time.Millisecond)
		e.QueueDelete(5, late)
		if err := <-done; err != nil {
			t.Fatal(err)
		}

		// Flush whatever the first cycle did not snapshot.
		if err := e.Sync(context.Background(), 5); err != nil {
			t.Fatal(err)
		}
		if _, ok := w.Get(late); ok {
			t.Fatalf("attempt %d: mid-cycle delete of %d never applied", attempt, late)
		}
		if got := e.PendingDeletes(5); len(got) != 0 {
			t.Fatalf("attempt %d: pendingDeletes = %v, want empty", attempt, got)
		}
	}
}

func TestPendingEditsApplyAfterDelta(t *testing.T) {
	f := &fakeRemote{sinceFn: func(chatID, since int64) ([]model.Message, error) {
		// The delta replays the stale pre-edit body.
		return []model.Message{{ID: 3, ChatID: chatID, Content: "stale", SentAt: 1000}}, nil
	}}
	e, reg, _ := newEngine(t, f)

	reg.GetOrCreate(5).InsertNewest(model.Message{ID: 3, ChatID: 5, Content: "stale", SentAt: 1000})
	e.QueueEdit(5, model.Message{ID: 3, ChatID: 5, Content: "edited", IsEdited: true, SentAt: 1000})

	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}

	// The pending edit wins over the replayed delta.
	if m, _ := reg.Get(5).Get(3); m.Content != "edited" || !m.IsEdited {
		t.Errorf("message = %+v, want pending edit applied last", m)
	}
	if got := e.PendingEdits(5); len(got) != 0 {
		t.Errorf("pendingEdits = %v, want cleared", got)
	}
}

func TestCheckpointLoadedFromStore(t *testing.T) {
	var gotSince int64 = -1
	f := &fakeRemote{sinceFn: func(chatID, since int64) ([]model.Message, error) {
		gotSince = since
		return nil, nil
	}}
	e, _, db := newEngine(t, f)

	if err := db.SetLastSync(5, 42000); err != nil {
		t.Fatal(err)
	}

	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if gotSince != 42000 {
		t.Errorf("since = %d, want persisted checkpoint 42000", gotSince)
	}
}

func TestStale(t *testing.T) {
	f := &fakeRemote{}
	e, _, _ := newEngine(t, f)

	if !e.Stale(5, 30*time.Second) {
		t.Error("never-synced chat should be stale")
	}
	if err := e.Sync(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if e.Stale(5, 30*time.Second) {
		t.Error("just-synced chat should not be stale")
	}
}
