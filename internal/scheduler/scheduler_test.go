package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSyncer struct {
	mu    sync.Mutex
	syncs map[int64]int
	stale bool
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{syncs: make(map[int64]int), stale: true}
}

func (f *fakeSyncer) Sync(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs[chatID]++
	return nil
}

func (f *fakeSyncer) Stale(int64, time.Duration) bool { return f.stale }

func (f *fakeSyncer) count(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs[chatID]
}

type fakeFacade struct {
	refreshes atomic.Int32
	warms     []int64
	warmMu    sync.Mutex
	listStale bool
	top       []int64
	onWarm    func(chatID int64)
}

func (f *fakeFacade) RefreshChatList(context.Context) error {
	f.refreshes.Add(1)
	return nil
}
func (f *fakeFacade) ChatListStale() bool { return f.listStale }
func (f *fakeFacade) WarmChat(_ context.Context, chatID int64) error {
	f.warmMu.Lock()
	f.warms = append(f.warms, chatID)
	f.warmMu.Unlock()
	if f.onWarm != nil {
		f.onWarm(chatID)
	}
	return nil
}
func (f *fakeFacade) TopChats(int) []int64 { return f.top }

func (f *fakeFacade) warmed() []int64 {
	f.warmMu.Lock()
	defer f.warmMu.Unlock()
	out := make([]int64, len(f.warms))
	copy(out, f.warms)
	return out
}

type fakeWindows struct{ ids []int64 }

func (f *fakeWindows) ChatIDs() []int64 { return f.ids }

func testConfig() Config {
	return Config{
		SyncInterval:    20 * time.Millisecond,
		IdleThreshold:   30 * time.Millisecond,
		IdleCheckPeriod: 10 * time.Millisecond,
		ChatDebounce:    20 * time.Millisecond,
		ListDebounce:    20 * time.Millisecond,
		WarmTopChats:    3,
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	syn := newFakeSyncer()
	s := New(testConfig(), syn, &fakeFacade{}, &fakeWindows{}, nil)
	defer s.Stop()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		s.RequestChatSync(ctx, 5)
	}

	time.Sleep(60 * time.Millisecond)
	if got := syn.count(5); got != 1 {
		t.Errorf("syncs = %d, want 1 (burst coalesced)", got)
	}

	// A request after the window fires again.
	s.RequestChatSync(ctx, 5)
	time.Sleep(60 * time.Millisecond)
	if got := syn.count(5); got != 2 {
		t.Errorf("syncs = %d, want 2", got)
	}
}

func TestPeriodicSyncsStaleChats(t *testing.T) {
	syn := newFakeSyncer()
	s := New(testConfig(), syn, &fakeFacade{}, &fakeWindows{ids: []int64{1, 2}}, nil)

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(70 * time.Millisecond)
	if syn.count(1) == 0 || syn.count(2) == 0 {
		t.Errorf("stale chats not synced: %v", syn.syncs)
	}
}

func TestPeriodicSkipsFreshChats(t *testing.T) {
	syn := newFakeSyncer()
	syn.stale = false
	s := New(testConfig(), syn, &fakeFacade{}, &fakeWindows{ids: []int64{1}}, nil)

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(70 * time.Millisecond)
	if got := syn.count(1); got != 0 {
		t.Errorf("syncs = %d, want 0 for fresh chat", got)
	}
}

func TestStaleListTriggersDebouncedRefresh(t *testing.T) {
	f := &fakeFacade{listStale: true}
	s := New(testConfig(), newFakeSyncer(), f, &fakeWindows{}, nil)

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := f.refreshes.Load(); got == 0 {
		t.Error("stale list never refreshed")
	}
}

func TestIdleWarmsTopChats(t *testing.T) {
	f := &fakeFacade{top: []int64{9, 8, 7}}
	s := New(testConfig(), newFakeSyncer(), f, &fakeWindows{}, nil)

	s.Start(context.Background())
	defer s.Stop()

	// No activity: idle flips after the threshold and warming runs.
	time.Sleep(100 * time.Millisecond)
	warmed := f.warmed()
	if len(warmed) != 3 || warmed[0] != 9 || warmed[1] != 8 || warmed[2] != 7 {
		t.Errorf("warmed = %v, want [9 8 7] in order", warmed)
	}
	if !s.IsIdle() {
		t.Error("IsIdle() = false after quiet period")
	}
}

func TestActivityAbortsWarming(t *testing.T) {
	f := &fakeFacade{top: []int64{1, 2, 3}}
	s := New(testConfig(), newFakeSyncer(), f, &fakeWindows{}, nil)
	f.onWarm = func(chatID int64) {
		if chatID == 1 {
			// User resumes mid-loop: the idle flag flips false and the
			// warming loop must stop before chat 2.
			s.MarkActivity(time.Now())
		}
	}

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(120 * time.Millisecond)
	warmed := f.warmed()
	if len(warmed) == 0 {
		t.Fatal("warming never started")
	}
	// The loop may restart on a later idle flip, but chats 2 and 3 must
	// never be reached: the abort happens between chats.
	for _, id := range warmed {
		if id != 1 {
			t.Errorf("warmed chat %d after activity resumed", id)
		}
	}
}

func TestMarkActivityDefersIdle(t *testing.T) {
	s := New(testConfig(), newFakeSyncer(), &fakeFacade{}, &fakeWindows{}, nil)
	s.Start(context.Background())
	defer s.Stop()

	// Keep touching activity: idle must never flip.
	for i := 0; i < 8; i++ {
		s.MarkActivity(time.Now())
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsIdle() {
		t.Error("IsIdle() = true despite continuous activity")
	}
}

func TestStopClearsPendingDebounce(t *testing.T) {
	syn := newFakeSyncer()
	s := New(testConfig(), syn, &fakeFacade{}, &fakeWindows{}, nil)

	s.RequestChatSync(context.Background(), 5)
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := syn.count(5); got != 0 {
		t.Errorf("syncs = %d, want 0 after Stop", got)
	}
}
