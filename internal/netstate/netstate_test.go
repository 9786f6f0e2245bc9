package netstate

import (
	"testing"

	"chatsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
	if !m.Online() {
		t.Error("Booting should count as online so the first fetch probes the network")
	}
}

func TestReportCycle(t *testing.T) {
	m := NewMachine(nil)

	m.ReportSuccess()
	if m.Current() != Online {
		t.Errorf("state = %s, want ONLINE", m.Current())
	}

	m.ReportUnavailable()
	if m.Current() != Offline {
		t.Errorf("state = %s, want OFFLINE", m.Current())
	}
	if m.Online() {
		t.Error("Online() = true while OFFLINE")
	}

	m.ReportSuccess()
	if m.Current() != Online {
		t.Errorf("state = %s, want ONLINE after recovery", m.Current())
	}
}

func TestRejectedIsDegradedNotOffline(t *testing.T) {
	m := NewMachine(nil)
	m.ReportSuccess()
	m.ReportRejected()

	if m.Current() != Degraded {
		t.Errorf("state = %s, want DEGRADED", m.Current())
	}
	if !m.Online() {
		t.Error("Degraded should still attempt remote calls")
	}
}

func TestSameStateIsNoOp(t *testing.T) {
	m := NewMachine(nil)
	m.ReportSuccess()
	if err := m.Transition(Online); err != nil {
		t.Errorf("same-state transition error = %v, want nil", err)
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	m.ReportSuccess()
	if err := m.Transition(Booting); err == nil {
		t.Error("Transition(ONLINE -> BOOTING) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("net.", 10)
	defer unsub()

	m := NewMachine(b)
	m.ReportUnavailable()

	evt := <-ch
	if evt.Kind != bus.KindNetStatusChanged {
		t.Errorf("event kind = %q, want net.status_changed", evt.Kind)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Offline {
		t.Errorf("change = %v -> %v, want BOOTING -> OFFLINE", change.From, change.To)
	}
}
