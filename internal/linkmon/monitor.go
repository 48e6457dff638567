// Package linkmon implements the link/exit monitor: tracking local-actor to
// peer-PID link edges, and firing exit notifications when a peer's
// transport-level liveness signal (stream close, or local termination)
// says the peer is gone.
package linkmon

import (
	"sync"

	"github.com/jabolina/goprocess/definition"
	"github.com/jabolina/goprocess/internal/connpool"
	"github.com/jabolina/goprocess/internal/loop"
	"github.com/jabolina/goprocess/pid"
)

// Notifier is invoked once per fired link edge, on the loop thread. owner is
// the local actor that held the link; peer is the PID that became
// unreachable.
type Notifier func(owner, peer pid.PID)

// Monitor is the per-context link table described in spec §4.6. All
// mutation happens on the loop thread; Link is the only entry point called
// from arbitrary goroutines, and it hands off via Schedule/the connection
// cache exactly like the core's other cross-thread operations.
type Monitor struct {
	loop   *loop.Loop
	cache  *connpool.Cache
	notify Notifier
	log    definition.Logger

	mu    sync.Mutex
	links map[pid.PID]map[pid.PID]struct{} // local -> set of peer
}

// New builds a Monitor. cache is used to wait for a remote peer's stream
// before recording a remote link edge; notify fires exited callbacks.
func New(l *loop.Loop, cache *connpool.Cache, log definition.Logger, notify Notifier) *Monitor {
	return &Monitor{
		loop:   l,
		cache:  cache,
		notify: notify,
		log:    log,
		links:  make(map[pid.PID]map[pid.PID]struct{}),
	}
}

// Link records a monitor edge from local to peer. If peer is itself local,
// the edge is recorded synchronously-on-the-loop (via Schedule); otherwise
// Link asks the connection cache for a stream to peer first, so the edge is
// only recorded once the peer is known to be reachable, and records it on
// the loop thread when the stream becomes ready. If the connect fails, no
// edge is recorded and notify fires for (local, peer) right away.
func (m *Monitor) Link(local, peer pid.PID, peerIsLocal bool) {
	if peerIsLocal {
		m.loop.Schedule(func() { m.record(local, peer) })
		return
	}
	m.cache.Get(peer, func(r connpool.Result) {
		if r.Err != nil {
			if m.notify != nil {
				m.notify(local, peer)
			}
			return
		}
		m.record(local, peer)
	})
}

func (m *Monitor) record(local, peer pid.PID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.links[local]
	if !ok {
		set = make(map[pid.PID]struct{})
		m.links[local] = set
	}
	set[peer] = struct{}{}
}

// OnPeerLost fires on a peer's stream close (the connection cache's onClose
// hook). It removes peer from every local actor's link set and invokes
// notify once per owner that held it, one-shot per edge.
func (m *Monitor) OnPeerLost(peer pid.PID) {
	m.fire(peer)
}

// OnLocalTerminated fires when a local actor terminates - it is itself a
// potential peer of other local actors' links, so the same fan-out applies.
func (m *Monitor) OnLocalTerminated(peer pid.PID) {
	m.fire(peer)
	m.forget(peer)
}

func (m *Monitor) fire(peer pid.PID) {
	m.mu.Lock()
	var owners []pid.PID
	for owner, set := range m.links {
		if _, ok := set[peer]; ok {
			delete(set, peer)
			owners = append(owners, owner)
		}
	}
	m.mu.Unlock()

	for _, owner := range owners {
		owner := owner
		if m.notify != nil {
			m.notify(owner, peer)
		}
	}
}

// forget drops any link set owned by peer itself, since a terminated local
// actor can hold no further links.
func (m *Monitor) forget(owner pid.PID) {
	m.mu.Lock()
	delete(m.links, owner)
	m.mu.Unlock()
}

// LinkCount reports how many peers local is linked to, for tests.
func (m *Monitor) LinkCount(local pid.PID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links[local])
}
