package process

import (
	"bufio"
	"net"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/jabolina/goprocess/definition"
	"github.com/jabolina/goprocess/pid"
	"github.com/jabolina/goprocess/wire"
)

// Delegate is the registry-facing surface the HTTP server dispatches
// through. Context implements it; Server never reaches into the actor
// registry directly.
type Delegate interface {
	// Route resolves a declared GET endpoint for actorID.
	Route(actorID, path string) (RouteHandler, bool)
	// HasMailbox reports whether actorID declared the named mailbox - the
	// server answers 404 for anything else, matching spec §4.4's "any
	// other URL -> 404".
	HasMailbox(actorID, mailbox string) bool
	// Deliver schedules mailbox delivery on the loop thread. Fire and
	// forget: the server has already decided the response code before
	// calling this.
	Deliver(actorID, mailbox string, sender pid.PID, body []byte)
}

// Server is the per-context HTTP server of spec §4.4, built on fasthttp so
// the handler can control status line and body framing precisely enough to
// answer a body-less 204 for legacy senders.
type Server struct {
	log      definition.Logger
	metrics  *Metrics
	delegate Delegate

	ln   net.Listener
	fast *fasthttp.Server
}

// NewServer builds a Server. Call Listen before Serve.
func NewServer(log definition.Logger, metrics *Metrics, delegate Delegate) *Server {
	s := &Server{log: log, metrics: metrics, delegate: delegate}
	s.fast = &fasthttp.Server{
		Handler: s.handle,
		// libprocess speaks HTTP/1.0; fasthttp answers whatever the
		// client's request line asked for, so no explicit downgrade is
		// needed here.
		DisableKeepalive: false,
	}
	return s
}

// Listen binds the listening socket, applying §6's "substitute the
// resolved hostname if the bound ip is unspecified" rule, and returns the
// ip/port actually bound - which differs from the request when port is 0
// (ephemeral) or ip is 0.0.0.0.
func (s *Server) Listen(ip string, port uint16) (boundIP string, boundPort uint16, err error) {
	addr := net.JoinHostPort(ip, strconv.FormatUint(uint64(port), 10))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", 0, err
	}
	s.ln = ln

	tcpAddr := ln.Addr().(*net.TCPAddr)
	resolvedIP, err := substituteUnspecified(tcpAddr.IP.String())
	if err != nil {
		resolvedIP = tcpAddr.IP.String()
	}
	return resolvedIP, uint16(tcpAddr.Port), nil
}

// Serve starts accepting connections in the background. Must be called
// after Listen.
func (s *Server) Serve() {
	go func() {
		if err := s.fast.Serve(s.ln); err != nil && s.log != nil {
			s.log.Debugf("http server stopped: %v", err)
		}
	}()
}

// Close stops accepting connections and tears down any in-flight request
// handling. Safe to call once; idempotent calls are not required by any
// caller in this package.
func (s *Server) Close() error {
	return s.fast.Shutdown()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := strings.TrimPrefix(string(ctx.Path()), "/")
	actorID, rest, ok := splitOnce(path)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	switch string(ctx.Method()) {
	case fasthttp.MethodGet:
		s.handleRoute(ctx, actorID, "/"+rest)
	case fasthttp.MethodPost:
		s.handleMailbox(ctx, actorID, rest)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func splitOnce(path string) (first, rest string, ok bool) {
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

func (s *Server) handleRoute(ctx *fasthttp.RequestCtx, actorID, path string) {
	handler, ok := s.delegate.Route(actorID, path)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	query := ctx.QueryArgs()
	req := &RouteRequest{
		Path: path,
		Query: func(key string) string {
			return string(query.Peek(key))
		},
	}

	chunks, err := handler(req)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	if chunks == nil {
		return
	}
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		for chunk := range chunks {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			_ = w.Flush()
		}
	})
}

func (s *Server) handleMailbox(ctx *fasthttp.RequestCtx, actorID, mailbox string) {
	if !s.delegate.HasMailbox(actorID, mailbox) {
		if s.metrics != nil {
			s.metrics.dropped("unknown_mailbox")
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	sender, legacy, ok := wire.DecodeSender(func(key string) (string, bool) {
		v := ctx.Request.Header.Peek(key)
		if v == nil {
			return "", false
		}
		return string(v), true
	})
	if !ok {
		if s.metrics != nil {
			s.metrics.dropped("not_process_originating")
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	body := append([]byte(nil), ctx.PostBody()...)
	s.delegate.Deliver(actorID, mailbox, sender, body)

	if legacy {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		ctx.Response.SkipBody = true
	} else {
		ctx.SetStatusCode(fasthttp.StatusAccepted)
	}
}
