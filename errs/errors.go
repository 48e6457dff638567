// Package errs collects the sentinel error values for the process runtime's
// error taxonomy. Every exported error here is meant to be compared with
// errors.Is; callers that need to attach context (a PID, a method name, a
// body length) wrap one of these with github.com/pkg/errors.Wrapf instead of
// inventing a new error type.
package errs

import "errors"

var (
	// ErrInvalidPid is returned when a PID string does not match
	// `name@ip:port`, or carries a malformed ip/port.
	ErrInvalidPid = errors.New("invalid pid")

	// ErrInvalidProcess is returned when an operation references a PID
	// that is not mounted on the local context.
	ErrInvalidProcess = errors.New("invalid process")

	// ErrInvalidMethod is returned when dispatch/delay names a method the
	// target actor does not expose.
	ErrInvalidMethod = errors.New("invalid method")

	// ErrUnboundProcess names the error of an actor operation requiring a
	// PID before bind/spawn. No function in this module returns it;
	// process.Base.PID reports an unbound actor with ok == false instead.
	ErrUnboundProcess = errors.New("unbound process")

	// ErrSocketError is handed to the connection cache's waiters (in
	// connpool.Result.Err) when dialing a peer fails.
	ErrSocketError = errors.New("socket error")

	// ErrConfigError is returned when context construction is given a
	// malformed ip/port, or a singleton re-init names a different
	// delegate.
	ErrConfigError = errors.New("config error")

	// ErrAlreadySpawned is returned by Spawn when the actor's chosen id
	// is already mounted on the context.
	ErrAlreadySpawned = errors.New("process already spawned")

	// ErrContextNotStarted is returned by Context.Spawn and Context.Send
	// when called before Context.Start.
	ErrContextNotStarted = errors.New("context not started")
)
