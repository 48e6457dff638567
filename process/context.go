package process

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/jabolina/goprocess/definition"
	"github.com/jabolina/goprocess/errs"
	"github.com/jabolina/goprocess/internal/connpool"
	"github.com/jabolina/goprocess/internal/linkmon"
	"github.com/jabolina/goprocess/internal/loop"
	"github.com/jabolina/goprocess/pid"
	"github.com/jabolina/goprocess/wire"
)

// Context is the per-process runtime facade of spec §3: one event loop, one
// listening socket, one HTTP server, one registry, one connection cache,
// one link table.
type Context struct {
	ip   string
	port uint16
	log  definition.Logger

	metrics *Metrics
	loop    *loop.Loop
	cache   *connpool.Cache
	monitor *linkmon.Monitor
	server  *Server

	mu     sync.Mutex
	actors map[string]Actor

	started  int32
	stopOnce sync.Once
}

// New builds a Context: resolves ip/port per spec §6 and binds the
// listening socket, but does not start the event loop or accept
// connections until Start is called.
func New(opts ...Option) (*Context, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	ip, err := resolveIP(cfg)
	if err != nil {
		return nil, err
	}
	port, err := resolvePort(cfg)
	if err != nil {
		return nil, err
	}

	log := cfg.log
	if log == nil {
		name := cfg.delegate
		if name == "" {
			name = "context"
		}
		log = definition.NewDefaultLogger(name)
	}

	ctx := &Context{
		log:    log,
		actors: make(map[string]Actor),
	}
	ctx.metrics = NewMetrics("goprocess")
	ctx.loop = loop.New(log)
	ctx.cache = connpool.New(ctx.loop, log, nil, ctx.onPeerLost)
	ctx.cache.SetMetrics(ctx.metrics)
	ctx.monitor = linkmon.New(ctx.loop, ctx.cache, log, ctx.onExited)
	ctx.server = NewServer(log, ctx.metrics, ctx)

	boundIP, boundPort, err := ctx.server.Listen(ip, port)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrConfigError, "listen on %s:%d: %v", ip, port, err)
	}
	ctx.ip = boundIP
	ctx.port = boundPort

	return ctx, nil
}

// IP returns the bound ip, after §6's unspecified-address substitution.
func (ctx *Context) IP() string { return ctx.ip }

// Port returns the bound port.
func (ctx *Context) Port() uint16 { return ctx.port }

// MetricsHandler exposes this context's Prometheus metrics in text format.
// The embedding application decides where, if anywhere, to mount it - the
// process HTTP server itself answers only actor routes and mailboxes.
func (ctx *Context) MetricsHandler() http.Handler { return ctx.metrics.Handler() }

// Start launches the event loop and begins accepting HTTP connections,
// blocking the caller until the loop has entered its run state - so Spawn,
// Send, etc. may be called immediately on return.
func (ctx *Context) Start() {
	ctx.loop.Start()
	ctx.server.Serve()
	atomic.StoreInt32(&ctx.started, 1)
}

func (ctx *Context) isStarted() bool {
	return atomic.LoadInt32(&ctx.started) == 1
}

// Stop terminates every actor, closes every cached stream, then halts the
// loop. Safe to call from any goroutine; idempotent.
func (ctx *Context) Stop() {
	ctx.stopOnce.Do(func() {
		if !ctx.isStarted() {
			// Never started: no loop thread or server goroutine is
			// running, so only the bound listener needs releasing.
			_ = ctx.server.ln.Close()
			return
		}
		done := make(chan struct{})
		ctx.loop.Schedule(func() {
			ctx.mu.Lock()
			ids := make([]string, 0, len(ctx.actors))
			for id := range ctx.actors {
				ids = append(ids, id)
			}
			ctx.mu.Unlock()

			for _, id := range ids {
				ctx.terminateSync(id)
			}
			close(done)
		})
		<-done

		ctx.cache.CloseAll()
		_ = ctx.server.Close()
		atomic.StoreInt32(&ctx.started, 0)
		ctx.loop.Stop()
	})
}

// Spawn mounts an actor on the context, assigning it a PID of
// (ctx.IP(), ctx.Port(), actor.Base().ID()), running its declared
// Initializer hook, and returning the PID. The mutation and the hook both
// run on the loop thread; Spawn blocks the caller until that completes.
func (ctx *Context) Spawn(a Actor) (pid.PID, error) {
	if !ctx.isStarted() {
		return pid.PID{}, errs.ErrContextNotStarted
	}

	base := a.Base()
	if base.State() != Unbound {
		return pid.PID{}, errors.Wrapf(errs.ErrAlreadySpawned, "actor %q is not unbound", base.ID())
	}
	id := base.ID()

	type outcome struct {
		p   pid.PID
		err error
	}
	result := make(chan outcome, 1)

	ctx.loop.Schedule(func() {
		ctx.mu.Lock()
		if _, exists := ctx.actors[id]; exists {
			ctx.mu.Unlock()
			result <- outcome{err: errors.Wrapf(errs.ErrAlreadySpawned, "id %q", id)}
			return
		}
		p, err := pid.New(id, ctx.ip, ctx.port)
		if err != nil {
			ctx.mu.Unlock()
			result <- outcome{err: err}
			return
		}
		if !base.bind(p) {
			ctx.mu.Unlock()
			result <- outcome{err: errors.Wrapf(errs.ErrAlreadySpawned, "id %q", id)}
			return
		}
		ctx.actors[id] = a
		ctx.mu.Unlock()

		base.markInitialized()
		if init, ok := a.(Initializer); ok {
			init.Initialize()
		}
		result <- outcome{p: p}
	})

	r := <-result
	return r.p, r.err
}

// Terminate removes a local actor from the registry, unmounts its HTTP
// routes and mailboxes, and notifies the link monitor. Subsequent sends
// targeting pid from a local sender fall through to the remote path and
// are delivered to a 404, per spec §4.5.
func (ctx *Context) Terminate(target pid.PID) {
	ctx.loop.Schedule(func() {
		ctx.terminateSync(target.ID())
	})
}

func (ctx *Context) terminateSync(id string) {
	ctx.mu.Lock()
	a, ok := ctx.actors[id]
	if ok {
		delete(ctx.actors, id)
	}
	ctx.mu.Unlock()
	if !ok {
		return
	}

	base := a.Base()
	p, _ := base.PID()
	base.markTerminated()
	ctx.monitor.OnLocalTerminated(p)
}

// Send encodes and delivers a message from a local actor to to. If to is
// local and the destination actor has a handler for method, the
// invocation is scheduled directly (the local short-circuit); otherwise
// the message is encoded on the wire and written to a cached (or freshly
// established) TCP stream to to.
func (ctx *Context) Send(from, to pid.PID, method string, body []byte) error {
	if !ctx.isStarted() {
		return errs.ErrContextNotStarted
	}

	if to.SameHost(ctx.ip, ctx.port) {
		ctx.mu.Lock()
		a, ok := ctx.actors[to.ID()]
		ctx.mu.Unlock()
		if ok {
			if h, has := a.Base().mailboxHandler(method); has {
				ctx.loop.Schedule(func() { h(from, body) })
				ctx.metrics.sent(method)
				return nil
			}
			ctx.log.Warnf("local send to %s has no mailbox %q; falling through to remote path", to, method)
		}
	}

	raw := wire.Encode(wire.Request{From: from, To: to, Method: method, Body: body})
	ctx.cache.Get(to, func(r connpool.Result) {
		if r.Err != nil {
			ctx.log.Warnf("send %s to %s failed: %v", method, to, r.Err)
			return
		}
		if _, err := r.Conn.Write(raw); err != nil {
			ctx.log.Warnf("write %s to %s failed: %v", method, to, err)
		}
	})
	ctx.metrics.sent(method)
	return nil
}

// Dispatch schedules a direct invocation of a named method on a local
// actor's Base - not just its declared mailboxes. Fails with
// errs.ErrInvalidProcess or errs.ErrInvalidMethod if target or method is
// unknown.
func (ctx *Context) Dispatch(target pid.PID, method string) error {
	fn, err := ctx.lookupMethod(target, method)
	if err != nil {
		return err
	}
	ctx.loop.Schedule(fn)
	return nil
}

// Delay is Dispatch after a time offset.
func (ctx *Context) Delay(after time.Duration, target pid.PID, method string) error {
	fn, err := ctx.lookupMethod(target, method)
	if err != nil {
		return err
	}
	ctx.loop.ScheduleAfter(after, fn)
	return nil
}

func (ctx *Context) lookupMethod(target pid.PID, method string) (func(), error) {
	ctx.mu.Lock()
	a, ok := ctx.actors[target.ID()]
	ctx.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errs.ErrInvalidProcess, "pid %s", target)
	}
	fn, ok := a.Base().methodHandler(method)
	if !ok {
		return nil, errors.Wrapf(errs.ErrInvalidMethod, "method %q on %s", method, target)
	}
	return fn, nil
}

// Link records a monitor edge from local to peer, so that a future
// transport-level loss of peer (or its local termination) calls local's
// Exited hook, if it implements Exiter.
func (ctx *Context) Link(local, peer pid.PID) {
	peerIsLocal := peer.SameHost(ctx.ip, ctx.port)
	ctx.monitor.Link(local, peer, peerIsLocal)
}

func (ctx *Context) onPeerLost(peer pid.PID) {
	ctx.monitor.OnPeerLost(peer)
}

func (ctx *Context) onExited(owner, peer pid.PID) {
	ctx.mu.Lock()
	a, ok := ctx.actors[owner.ID()]
	ctx.mu.Unlock()
	if !ok {
		return
	}
	if ex, ok := a.(Exiter); ok {
		ex.Exited(peer)
	}
}

// Route implements Delegate.
func (ctx *Context) Route(actorID, path string) (RouteHandler, bool) {
	ctx.mu.Lock()
	a, ok := ctx.actors[actorID]
	ctx.mu.Unlock()
	if !ok {
		return nil, false
	}
	return a.Base().routeHandler(path)
}

// HasMailbox implements Delegate.
func (ctx *Context) HasMailbox(actorID, mailbox string) bool {
	ctx.mu.Lock()
	a, ok := ctx.actors[actorID]
	ctx.mu.Unlock()
	if !ok {
		return false
	}
	_, has := a.Base().mailboxHandler(mailbox)
	return has
}

// Deliver implements Delegate: schedules the mailbox handler invocation on
// the loop thread.
func (ctx *Context) Deliver(actorID, mailbox string, sender pid.PID, body []byte) {
	ctx.mu.Lock()
	a, ok := ctx.actors[actorID]
	ctx.mu.Unlock()
	if !ok {
		return
	}
	h, ok := a.Base().mailboxHandler(mailbox)
	if !ok {
		return
	}
	ctx.metrics.received(mailbox)
	ctx.loop.Schedule(func() { h(sender, body) })
}
