// Package wire implements the libprocess HTTP/1.0 wire format: encoding an
// outbound message into a raw request, and decoding sender identification
// out of an inbound request's headers.
package wire

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jabolina/goprocess/pid"
)

const (
	// HeaderFrom is the modern sender-identification header.
	HeaderFrom = "Libprocess-From"
	// HeaderUserAgent carries the legacy "libprocess/<pid>" identification.
	HeaderUserAgent = "User-Agent"
	// HeaderContentType is emitted only when the caller supplies one.
	HeaderContentType = "Content-Type"

	legacyUserAgentPrefix = "libprocess/"
)

// Request is everything the codec needs to encode one outbound message.
type Request struct {
	From        pid.PID
	To          pid.PID
	Method      string
	Body        []byte
	ContentType string
	// Legacy identifies the sender via User-Agent instead of
	// Libprocess-From, matching older libprocess peers.
	Legacy bool
}

// Encode renders r as a complete HTTP/1.0 request: start line, headers
// terminated by CRLFCRLF, then the body. The Content-Length header always
// equals len(r.Body); a nil body encodes as zero length, never as a
// missing header.
func Encode(r Request) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "POST /%s/%s HTTP/1.0\r\n", r.To.ID(), r.Method)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(r.Body))
	buf.WriteString("Connection: Keep-Alive\r\n")

	if r.Legacy {
		fmt.Fprintf(&buf, "%s: %s%s\r\n", HeaderUserAgent, legacyUserAgentPrefix, r.From.String())
	} else {
		fmt.Fprintf(&buf, "%s: %s\r\n", HeaderFrom, r.From.String())
	}

	if r.ContentType != "" {
		fmt.Fprintf(&buf, "%s: %s\r\n", HeaderContentType, r.ContentType)
	}

	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

// HeaderLookup resolves a single header's first value; ok is false when the
// header is absent. It lets this package decode sender identification
// without depending on any particular HTTP server implementation.
type HeaderLookup func(key string) (value string, ok bool)

// DecodeSender extracts the sender PID from an inbound request's headers,
// in priority order: Libprocess-From first, then a User-Agent beginning
// with "libprocess/". Any parse failure, or the absence of both headers,
// means the request is not process-originating (ok == false). legacy tells
// the caller which header identified the sender, since the two call for
// different response codes (§4.3: 202 modern, 204 legacy).
func DecodeSender(lookup HeaderLookup) (sender pid.PID, legacy bool, ok bool) {
	if v, present := lookup(HeaderFrom); present {
		p, err := pid.Parse(v)
		if err != nil {
			return pid.PID{}, false, false
		}
		return p, false, true
	}

	if v, present := lookup(HeaderUserAgent); present && strings.HasPrefix(v, legacyUserAgentPrefix) {
		p, err := pid.Parse(strings.TrimPrefix(v, legacyUserAgentPrefix))
		if err != nil {
			return pid.PID{}, false, false
		}
		return p, true, true
	}

	return pid.PID{}, false, false
}
