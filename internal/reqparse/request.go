/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package reqparse turns the values wire.ReadRequestLine/ReadHeaderBlock
// hand back into a validated Request, enforcing method, version, target,
// and body-framing rules.
package reqparse

import (
	"strconv"
	"strings"

	"github.com/lucentsrv/lucent/hdr"
	"github.com/lucentsrv/lucent/internal/herr"
	"github.com/lucentsrv/lucent/internal/wire"
)

// Known HTTP methods. Only GET/HEAD and the CGI-invoking methods are
// ever serviced by the response generator; the rest are still recognized
// at the parser level so an unroutable method gets a 405, not a 400.
const (
	GET     = "GET"
	HEAD    = "HEAD"
	POST    = "POST"
	PUT     = "PUT"
	DELETE  = "DELETE"
	OPTIONS = "OPTIONS"
	TRACE   = "TRACE"
	CONNECT = "CONNECT"
	PATCH   = "PATCH"
)

var knownMethods = map[string]bool{
	GET: true, HEAD: true, POST: true, PUT: true, DELETE: true,
	OPTIONS: true, TRACE: true, CONNECT: true, PATCH: true,
}

// Request is the core's validated view of one HTTP transaction.
type Request struct {
	Method         string
	Path           string // cleaned, rooted path (see cleanPath)
	RawQuery       string
	Proto          string
	ProtoMajor     int
	ProtoMinor     int
	Header         hdr.Header
	ContentLength  int64 // -1 if absent
	Chunked        bool
	ExpectContinue bool
	WantsClose     bool // client asked for Connection: close (or is HTTP/1.0 without keep-alive)
}

// ProtoAtLeast reports whether the request's HTTP version is >= major.minor.
func (r *Request) ProtoAtLeast(major, minor int) bool {
	return r.ProtoMajor > major || (r.ProtoMajor == major && r.ProtoMinor >= minor)
}

// Parse validates a request-line and header block into a Request. It does
// not read the body; the caller reads it afterward via wire.ReadBody using
// the returned ContentLength/Chunked.
func Parse(rl wire.RequestLine, h hdr.Header) (*Request, *herr.HTTPError) {
	if !knownMethods[rl.Method] || !isToken(rl.Method) {
		return nil, herr.New(501, "unknown method")
	}

	major, minor, ok := parseProto(rl.Proto)
	if !ok {
		return nil, herr.New(505, "unsupported HTTP version")
	}

	if rl.Target == "" || rl.Target[0] != '/' {
		return nil, herr.New(400, "request-target must be origin-form")
	}
	path, escaped, malformed := cleanPath(targetPath(rl.Target))
	if malformed {
		return nil, herr.New(400, "malformed request-target")
	}
	if escaped {
		// Mark unresolvable: the response generator rejects an empty path
		// with 404 before any filesystem access. We still return a Request
		// so logging can see the attempt.
		path = ""
	}

	req := &Request{
		Method:     rl.Method,
		Path:       path,
		RawQuery:   targetQuery(rl.Target),
		Proto:      rl.Proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     h,
	}

	if major != 1 || (minor != 0 && minor != 1) {
		return nil, herr.New(505, "unsupported HTTP version")
	}

	hosts := h[hdr.Host]
	if minor == 1 && len(hosts) == 0 {
		return nil, herr.New(400, "missing Host header")
	}
	if len(hosts) > 1 {
		return nil, herr.New(400, "too many Host headers")
	}

	if exp := h.Get(hdr.Expect); exp != "" {
		if !strings.EqualFold(exp, "100-continue") {
			return nil, herr.New(417, "unsupported Expect value")
		}
		req.ExpectContinue = true
	}

	cls := h.Get(hdr.ContentLength)
	te := h.Get(hdr.TransferEncoding)
	chunked := strings.EqualFold(te, "chunked")
	if te != "" && !chunked {
		return nil, herr.New(501, "unsupported transfer-encoding")
	}
	if chunked && cls != "" {
		return nil, herr.New(400, "both Content-Length and Transfer-Encoding present")
	}
	if len(h[hdr.ContentLength]) > 1 {
		// Duplicate Content-Length with differing values is malformed;
		// identical repeats are tolerated.
		first := h[hdr.ContentLength][0]
		for _, v := range h[hdr.ContentLength][1:] {
			if v != first {
				return nil, herr.New(400, "conflicting Content-Length headers")
			}
		}
	}
	req.Chunked = chunked
	req.ContentLength = -1
	if cls != "" {
		n, err := strconv.ParseInt(cls, 10, 64)
		if err != nil || n < 0 {
			return nil, herr.New(400, "malformed Content-Length")
		}
		req.ContentLength = n
	}

	req.WantsClose = wantsClose(h, major, minor)
	return req, nil
}

func wantsClose(h hdr.Header, major, minor int) bool {
	for _, v := range h.Values(hdr.Connection) {
		if strings.EqualFold(v, "close") {
			return true
		}
	}
	if major == 1 && minor == 0 {
		for _, v := range h.Values(hdr.Connection) {
			if strings.EqualFold(v, "keep-alive") {
				return false
			}
		}
		return true
	}
	return false
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !hdr.IsTokenRune(rune(s[i])) {
			return false
		}
	}
	return true
}

func parseProto(proto string) (major, minor int, ok bool) {
	switch proto {
	case "HTTP/1.0":
		return 1, 0, true
	case "HTTP/1.1":
		return 1, 1, true
	default:
		return 0, 0, false
	}
}

func targetPath(target string) string {
	if target == "" || target[0] != '/' {
		return target
	}
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

func targetQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		q := target[i+1:]
		if h := strings.IndexByte(q, '#'); h >= 0 {
			q = q[:h]
		}
		return q
	}
	return ""
}
