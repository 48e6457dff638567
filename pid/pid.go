// Package pid implements the location-transparent actor identifier used
// throughout the process runtime: the triple (ip, port, id) formatted on the
// wire as "id@ip:port".
package pid

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jabolina/goprocess/errs"
)

// PID identifies a single actor, locally or across the network. It is an
// immutable value: every field is unexported and set only by New/Parse, and
// the zero value is never handed to a caller.
type PID struct {
	id   string
	ip   string
	port uint16
}

// New builds a PID from already-validated parts. It still runs the same
// validation Parse does, so a caller assembling a PID from a context's bound
// address and an actor name cannot produce an invalid value either.
func New(id, ip string, port uint16) (PID, error) {
	if id == "" || strings.Contains(id, "@") {
		return PID{}, errors.Wrapf(errs.ErrInvalidPid, "empty or malformed id %q", id)
	}
	if net.ParseIP(ip) == nil || strings.Contains(ip, ":") {
		return PID{}, errors.Wrapf(errs.ErrInvalidPid, "malformed ip %q", ip)
	}
	if port == 0 {
		return PID{}, errors.Wrapf(errs.ErrInvalidPid, "port must be in 1-65535, got %d", port)
	}
	return PID{id: id, ip: ip, port: port}, nil
}

// Parse decodes the wire form "id@ip:port" into a PID. Any deviation -
// missing '@', missing ':', a non dotted-quad ip, or a port outside
// 1-65535 - yields errs.ErrInvalidPid.
func Parse(s string) (PID, error) {
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return PID{}, errors.Wrapf(errs.ErrInvalidPid, "missing '@' in %q", s)
	}
	id, hostport := s[:at], s[at+1:]

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return PID{}, errors.Wrapf(errs.ErrInvalidPid, "malformed host:port in %q", s)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return PID{}, errors.Wrapf(errs.ErrInvalidPid, "malformed port in %q", s)
	}

	return New(id, host, uint16(port))
}

// ID returns the actor name component.
func (p PID) ID() string { return p.id }

// IP returns the dotted-quad ip component.
func (p PID) IP() string { return p.ip }

// Port returns the port component.
func (p PID) Port() uint16 { return p.port }

// Zero reports whether p is the zero value, i.e. never produced by New or
// Parse.
func (p PID) Zero() bool { return p.id == "" && p.ip == "" && p.port == 0 }

// String renders the wire form "id@ip:port". parse(pid.String()) always
// round trips back to an equal PID.
func (p PID) String() string {
	return fmt.Sprintf("%s@%s:%d", p.id, p.ip, p.port)
}

// URL renders the routable HTTP form "http://ip:port/id[/endpoint]". With no
// endpoint given, URL points at the actor's root.
func (p PID) URL(endpoint string) string {
	base := fmt.Sprintf("http://%s:%d/%s", p.ip, p.port, p.id)
	if endpoint == "" {
		return base
	}
	return base + "/" + strings.TrimPrefix(endpoint, "/")
}

// Equal reports structural equality over all three fields. Since PID has no
// unexported pointers or slices, plain == already does this, but Equal keeps
// call sites symmetric with types that can't use ==.
func (p PID) Equal(other PID) bool {
	return p == other
}

// SameHost reports whether p and other name the same (ip, port) endpoint,
// ignoring the actor id - used to decide whether a destination PID is local
// to a context bound at (ip, port).
func (p PID) SameHost(ip string, port uint16) bool {
	return p.ip == ip && p.port == port
}
