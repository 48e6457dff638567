package linkmon

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/goprocess/internal/connpool"
	"github.com/jabolina/goprocess/internal/loop"
	"github.com/jabolina/goprocess/pid"
)

func newTestLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(nil)
	l.Start()
	t.Cleanup(l.Stop)
	return l
}

func TestLink_LocalEdgeRecordedSynchronouslyOnLoop(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	l := newTestLoop(t)
	cache := connpool.New(l, nil, nil, nil)
	m := New(l, cache, nil, nil)

	local, _ := pid.New("child", "1.1.1.1", 100)
	peer, _ := pid.New("parent", "1.1.1.1", 100)

	m.Link(local, peer, true)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.LinkCount(local) == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected link to be recorded, got count %d", m.LinkCount(local))
}

func TestOnLocalTerminated_FiresExitedForEveryLinkedOwner(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	l := newTestLoop(t)
	cache := connpool.New(l, nil, nil, nil)

	var mu sync.Mutex
	var firedFor []pid.PID
	m := New(l, cache, nil, func(owner, peer pid.PID) {
		mu.Lock()
		firedFor = append(firedFor, owner)
		mu.Unlock()
	})

	parent, _ := pid.New("parent", "1.1.1.1", 100)
	const n = 5
	children := make([]pid.PID, n)
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		c, _ := pid.New("child", "1.1.1.1", uint16(200+i))
		children[i] = c
		l.Schedule(func() {
			m.Link(c, parent, true)
			done <- struct{}{}
		})
	}
	for i := 0; i < n; i++ {
		<-done
	}

	// Link is recorded via Schedule too, give it a beat to land.
	time.Sleep(50 * time.Millisecond)

	l.Schedule(func() { m.OnLocalTerminated(parent) })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := len(firedFor)
		mu.Unlock()
		if got == n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(firedFor) != n {
		t.Fatalf("exited fired %d times, want %d", len(firedFor), n)
	}
}

func TestOnPeerLost_OneShotPerEdge(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	l := newTestLoop(t)
	cache := connpool.New(l, nil, nil, nil)

	count := 0
	var mu sync.Mutex
	m := New(l, cache, nil, func(owner, peer pid.PID) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	local, _ := pid.New("child", "1.1.1.1", 100)
	peer, _ := pid.New("parent", "1.1.1.1", 101)
	done := make(chan struct{})
	l.Schedule(func() {
		m.Link(local, peer, true)
		close(done)
	})
	<-done
	time.Sleep(50 * time.Millisecond)

	l.Schedule(func() { m.OnPeerLost(peer) })
	l.Schedule(func() { m.OnPeerLost(peer) })

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("notify fired %d times, want exactly 1 (one-shot per edge)", count)
	}
}
