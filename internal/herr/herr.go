// Package herr carries the error-taxonomy-to-status mapping across
// package boundaries (wire, reqparse, cond, rng, cgi, respgen) without
// those packages needing to import one another.
package herr

import (
	"fmt"

	"github.com/lucentsrv/lucent/hdr"
)

// HTTPError is a short-circuit outcome: a middleware stage in the
// response generator (package respgen) that cannot continue returns one
// of these, which gets rendered through the error-page template. Header
// carries any response headers the raising stage needs on the rendered
// error page (e.g. basicauth's WWW-Authenticate challenge); it is merged
// into the final response as-is, never overriding Content-Type/Allow.
type HTTPError struct {
	Status int
	Close  bool
	Msg    string
	Header hdr.Header
}

func (e *HTTPError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Msg)
}

// New builds an HTTPError, consulting the canonical close-on-error table
// for the given status.
func New(status int, msg string) *HTTPError {
	return &HTTPError{Status: status, Close: closesOnError(status), Msg: msg}
}

// closesOnError reports whether an error response with this status must
// also terminate the connection. Framing-level failures (the request
// stream can no longer be trusted) and internal errors close; resource-
// level failures don't.
func closesOnError(status int) bool {
	switch status {
	case 400, 413, 414, 417, 431, 500, 501, 505, 408:
		return true
	default:
		return false
	}
}
