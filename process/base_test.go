package process

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/jabolina/goprocess/pid"
)

func TestBase_DeclareBeforeBind(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBase("echo")
	b.Route("/status", func(req *RouteRequest) (<-chan []byte, error) { return nil, nil })
	b.Install("ping", func(sender pid.PID, body []byte) {})
	b.Method("tick", func() {})

	if got := b.State(); got != Unbound {
		t.Fatalf("state = %v, want Unbound", got)
	}

	self, err := pid.New("echo", "127.0.0.1", 9000)
	if err != nil {
		t.Fatalf("pid.New: %v", err)
	}
	if !b.bind(self) {
		t.Fatalf("bind returned false on first call")
	}
	if got := b.State(); got != Bound {
		t.Fatalf("state after bind = %v, want Bound", got)
	}

	gotPID, ok := b.PID()
	if !ok || gotPID != self {
		t.Fatalf("PID() = %v, %v, want %v, true", gotPID, ok, self)
	}

	if _, has := b.routeHandler("/status"); !has {
		t.Fatalf("expected /status route to survive bind")
	}
	if _, has := b.mailboxHandler("ping"); !has {
		t.Fatalf("expected ping mailbox to survive bind")
	}
	if _, has := b.methodHandler("tick"); !has {
		t.Fatalf("expected tick method to survive bind")
	}
}

func TestBase_RouteAfterBindPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBase("late")
	self, err := pid.New("late", "127.0.0.1", 9001)
	if err != nil {
		t.Fatalf("pid.New: %v", err)
	}
	if !b.bind(self) {
		t.Fatalf("bind failed")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic registering a route after bind")
		}
	}()
	b.Route("/too-late", func(req *RouteRequest) (<-chan []byte, error) { return nil, nil })
}

func TestBase_InstallAfterBindPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBase("late")
	self, err := pid.New("late", "127.0.0.1", 9002)
	if err != nil {
		t.Fatalf("pid.New: %v", err)
	}
	if !b.bind(self) {
		t.Fatalf("bind failed")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic installing a mailbox after bind")
		}
	}()
	b.Install("too-late", func(sender pid.PID, body []byte) {})
}

func TestBase_SecondBindFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBase("once")
	first, err := pid.New("once", "127.0.0.1", 9003)
	if err != nil {
		t.Fatalf("pid.New: %v", err)
	}
	if !b.bind(first) {
		t.Fatalf("first bind should succeed")
	}

	second, err := pid.New("once", "127.0.0.1", 9004)
	if err != nil {
		t.Fatalf("pid.New: %v", err)
	}
	if b.bind(second) {
		t.Fatalf("second bind should fail")
	}

	got, _ := b.PID()
	if got != first {
		t.Fatalf("PID() = %v after failed rebind, want unchanged %v", got, first)
	}
}

func TestBase_LifecycleTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBase("life")
	self, err := pid.New("life", "127.0.0.1", 9005)
	if err != nil {
		t.Fatalf("pid.New: %v", err)
	}

	if _, ok := b.PID(); ok {
		t.Fatalf("PID() should be unavailable before bind")
	}

	b.bind(self)
	b.markInitialized()
	if got := b.State(); got != Initialized {
		t.Fatalf("state = %v, want Initialized", got)
	}

	b.markTerminated()
	if got := b.State(); got != Terminated {
		t.Fatalf("state = %v, want Terminated", got)
	}

	if _, ok := b.PID(); !ok {
		t.Fatalf("PID() should still resolve after termination")
	}
}

func TestBase_RoutePathsAndMailboxNames(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBase("listed")
	b.Route("/a", func(req *RouteRequest) (<-chan []byte, error) { return nil, nil })
	b.Route("/b", func(req *RouteRequest) (<-chan []byte, error) { return nil, nil })
	b.Install("x", func(sender pid.PID, body []byte) {})

	paths := b.routePaths()
	if len(paths) != 2 {
		t.Fatalf("routePaths() = %v, want 2 entries", paths)
	}
	names := b.mailboxNames()
	if len(names) != 1 || names[0] != "x" {
		t.Fatalf("mailboxNames() = %v, want [x]", names)
	}
}
