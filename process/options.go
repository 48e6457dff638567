package process

import (
	"net"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jabolina/goprocess/definition"
	"github.com/jabolina/goprocess/errs"
)

// config holds the resolved construction-time settings for a Context.
type config struct {
	ip       string
	port     uint16
	hasIP    bool
	hasPort  bool
	log      definition.Logger
	delegate string
}

// Option configures a Context at construction time. The functional-options
// shape mirrors how the wider pack's node/cluster bootstrap code is built.
type Option func(*config)

// WithIP pins the bound ip, taking priority over LIBPROCESS_IP.
func WithIP(ip string) Option {
	return func(c *config) {
		c.ip = ip
		c.hasIP = true
	}
}

// WithPort pins the bound port, taking priority over LIBPROCESS_PORT.
func WithPort(port uint16) Option {
	return func(c *config) {
		c.port = port
		c.hasPort = true
	}
}

// WithLogger overrides the default logrus-backed Logger.
func WithLogger(log definition.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithDelegateName names this context for the package-level singleton's
// compare-and-set re-init guard (see Default/Init).
func WithDelegateName(name string) Option {
	return func(c *config) { c.delegate = name }
}

// resolveIP implements §6's ip resolution order: explicit argument, else
// LIBPROCESS_IP, else 0.0.0.0.
func resolveIP(c *config) (string, error) {
	if c.hasIP {
		if net.ParseIP(c.ip) == nil {
			return "", errors.Wrapf(errs.ErrConfigError, "malformed ip %q", c.ip)
		}
		return c.ip, nil
	}
	if env := os.Getenv("LIBPROCESS_IP"); env != "" {
		if net.ParseIP(env) == nil {
			return "", errors.Wrapf(errs.ErrConfigError, "malformed LIBPROCESS_IP %q", env)
		}
		return env, nil
	}
	return "0.0.0.0", nil
}

// resolvePort implements §6's port resolution order: explicit argument,
// else LIBPROCESS_PORT, else 0 (meaning "let the OS assign an ephemeral
// port").
func resolvePort(c *config) (uint16, error) {
	if c.hasPort {
		return c.port, nil
	}
	if env := os.Getenv("LIBPROCESS_PORT"); env != "" {
		v, err := strconv.ParseUint(env, 10, 16)
		if err != nil {
			return 0, errors.Wrapf(errs.ErrConfigError, "malformed LIBPROCESS_PORT %q", env)
		}
		return uint16(v), nil
	}
	return 0, nil
}

// substituteUnspecified implements the "after bind, if the bound ip is
// unspecified, substitute the host's resolved hostname address" rule.
func substituteUnspecified(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || !parsed.IsUnspecified() {
		return ip, nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return ip, nil // best effort; keep the unspecified address rather than fail
	}
	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return ip, nil
	}
	return addrs[0], nil
}
