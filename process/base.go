// Package process implements the actor runtime described by the process
// base, registry, HTTP server, and context facade: named actors that
// exchange messages locally or over HTTP/1.0, identified by pid.PID.
package process

import (
	"sync"

	"github.com/jabolina/goprocess/pid"
)

// RouteRequest is the narrow view of an inbound GET a route handler needs.
// It does not expose the underlying HTTP server implementation.
type RouteRequest struct {
	Path  string
	Query func(key string) string
}

// RouteHandler answers a declared HTTP route. It may return a channel of
// byte chunks to stream back - the server reads it to completion and then
// finishes the response - or a nil channel, which answers 200 with an empty
// body. A non-nil error answers 500.
type RouteHandler func(req *RouteRequest) (<-chan []byte, error)

// MessageHandler answers a declared mailbox. It never returns a value:
// delivery is fire-and-forget, matching the Non-goal that there is no
// application-level acknowledgement.
type MessageHandler func(sender pid.PID, body []byte)

// Lifecycle is an actor's position in the unbound -> bound -> initialized ->
// terminated state machine spec §3 defines.
type Lifecycle int32

const (
	Unbound Lifecycle = iota
	Bound
	Initialized
	Terminated
)

func (l Lifecycle) String() string {
	switch l {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Initialized:
		return "initialized"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Actor is implemented by every embedder of Base, so the registry can reach
// the declarative maps and lifecycle state without depending on the
// concrete actor type.
type Actor interface {
	Base() *Base
}

// Initializer is an optional hook: if an actor implements it, Spawn calls
// Initialize() once the actor is mounted and has a PID.
type Initializer interface {
	Initialize()
}

// Exiter is an optional hook: if an actor implements it, the link monitor
// calls Exited(peer) once per link edge that fires.
type Exiter interface {
	Exited(peer pid.PID)
}

// Base is the declarative surface embedded by every actor. Route/Install/
// Method register handlers before the actor is bound to a context; the
// resulting maps are frozen (read-only) the moment bind is called, matching
// the "declared once, before spawn" contract of spec §4.7.
type Base struct {
	id string

	mu        sync.Mutex
	lifecycle Lifecycle
	self      pid.PID

	routes    map[string]RouteHandler
	mailboxes map[string]MessageHandler
	methods   map[string]func()
}

// NewBase builds an unbound Base for an actor that will spawn under the
// given id.
func NewBase(id string) *Base {
	return &Base{
		id:        id,
		lifecycle: Unbound,
		routes:    make(map[string]RouteHandler),
		mailboxes: make(map[string]MessageHandler),
		methods:   make(map[string]func()),
	}
}

// Base satisfies Actor so a type can embed *Base directly without writing
// its own Base() method.
func (b *Base) Base() *Base { return b }

// ID returns the caller-chosen actor name, known even before bind.
func (b *Base) ID() string { return b.id }

// Route attaches an HTTP path (must start with "/") to a handler. Panics if
// called after the actor has been bound to a context.
func (b *Base) Route(path string, h RouteHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lifecycle != Unbound {
		panic("process: Route called after bind; routes must be declared before Spawn")
	}
	b.routes[path] = h
}

// Install attaches a mailbox name to a handler. Panics if called after the
// actor has been bound to a context.
func (b *Base) Install(mailbox string, h MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lifecycle != Unbound {
		panic("process: Install called after bind; mailboxes must be declared before Spawn")
	}
	b.mailboxes[mailbox] = h
}

// Method attaches an arbitrary zero-argument callable reachable by
// Context.Dispatch/Delay - the "arbitrary methods, not just declared
// mailboxes" surface of spec §4.5. Panics if called after bind.
func (b *Base) Method(name string, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lifecycle != Unbound {
		panic("process: Method called after bind; methods must be declared before Spawn")
	}
	b.methods[name] = fn
}

// bind moves the actor from Unbound to Bound, assigning its PID and
// freezing the declared maps. Returns false if the actor was not Unbound.
func (b *Base) bind(self pid.PID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lifecycle != Unbound {
		return false
	}
	b.self = self
	b.lifecycle = Bound
	return true
}

func (b *Base) markInitialized() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lifecycle == Bound {
		b.lifecycle = Initialized
	}
}

func (b *Base) markTerminated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lifecycle = Terminated
}

// State returns the actor's current lifecycle state.
func (b *Base) State() Lifecycle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lifecycle
}

// PID returns the actor's assigned PID. Returns the zero PID and false if
// the actor has not yet been bound (spawned).
func (b *Base) PID() (pid.PID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lifecycle == Unbound {
		return pid.PID{}, false
	}
	return b.self, true
}

func (b *Base) routeHandler(path string) (RouteHandler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.routes[path]
	return h, ok
}

func (b *Base) mailboxHandler(name string) (MessageHandler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.mailboxes[name]
	return h, ok
}

func (b *Base) methodHandler(name string) (func(), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.methods[name]
	return h, ok
}

// routePaths and mailboxNames support tests asserting the post-spawn
// route/mailbox maps contain exactly the declared handlers.
func (b *Base) routePaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.routes))
	for p := range b.routes {
		out = append(out, p)
	}
	return out
}

func (b *Base) mailboxNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.mailboxes))
	for m := range b.mailboxes {
		out = append(out, m)
	}
	return out
}
