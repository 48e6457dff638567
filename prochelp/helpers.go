// Package prochelp collects test-support helpers for spinning up contexts
// and actors in scenario tests, mirroring the shape of the teacher's own
// test-cluster helpers.
package prochelp

import (
	"runtime"
	"testing"
	"time"

	"github.com/jabolina/goprocess/pid"
	"github.com/jabolina/goprocess/process"
)

// NewTestingContext builds and starts a Context bound to an ephemeral
// localhost port, failing t if construction fails. Stop is registered with
// t.Cleanup.
func NewTestingContext(t *testing.T) *process.Context {
	t.Helper()
	ctx, err := process.New(process.WithIP("127.0.0.1"), process.WithPort(0))
	if err != nil {
		t.Fatalf("failed creating context: %v", err)
	}
	ctx.Start()
	t.Cleanup(ctx.Stop)
	return ctx
}

// EchoActor is a minimal actor with a single "ping" mailbox that records
// every sender/body pair it receives, for assertions in scenario tests.
type EchoActor struct {
	*process.Base

	received chan Delivery
}

// Delivery is one recorded mailbox invocation.
type Delivery struct {
	Sender pid.PID
	Body   []byte
}

// NewEchoActor builds an EchoActor registered under id with a "ping"
// mailbox and a buffered delivery channel of the given capacity.
func NewEchoActor(id string, buffer int) *EchoActor {
	a := &EchoActor{Base: process.NewBase(id), received: make(chan Delivery, buffer)}
	a.Install("ping", func(sender pid.PID, body []byte) {
		a.received <- Delivery{Sender: sender, Body: append([]byte(nil), body...)}
	})
	return a
}

// SpawnEcho spawns a fresh EchoActor on ctx under id and returns its PID
// and the actor itself for asserting on deliveries.
func SpawnEcho(t *testing.T, ctx *process.Context, id string) (pid.PID, *EchoActor) {
	t.Helper()
	a := NewEchoActor(id, 16)
	p, err := ctx.Spawn(a)
	if err != nil {
		t.Fatalf("failed spawning %q: %v", id, err)
	}
	return p, a
}

// Next blocks until EchoActor receives a delivery or the deadline passes,
// failing t on timeout.
func (a *EchoActor) Next(t *testing.T, timeout time.Duration) Delivery {
	t.Helper()
	select {
	case d := <-a.received:
		return d
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a delivery on %q", a.ID())
		return Delivery{}
	}
}

// WaitOrTimeout runs cb in a goroutine and reports whether it finished
// before duration elapsed.
func WaitOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

// PrintStackTrace dumps every goroutine's stack to t.Errorf, for debugging
// a scenario test that hung rather than failed cleanly.
func PrintStackTrace(t *testing.T) {
	t.Helper()
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("%s", buf[:n])
}
