/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package wire implements the HTTP/1.x byte-stream layer: reading a
// request-line, a header block and a (possibly chunked) body under size
// and time limits, and writing a Content-Length-framed response. It is the
// bottom of the request/response pipeline described by the response
// generator (package respgen).
package wire

import "time"

// Limits bounds how much of a request lucent is willing to read before
// giving up, and how long it will wait at each phase. Zero-value fields
// fall back to DefaultLimits when passed through WithDefaults.
type Limits struct {
	MaxURILen       int   // request-line bytes, including method and version
	MaxHeadersBytes int   // header block bytes
	MaxHeadersCount int   // number of header lines
	MaxBodyLen      int64 // request body bytes

	RequestLineTimeout time.Duration
	HeadersTimeout     time.Duration
	BodyTimeout        time.Duration
}

// DefaultLimits is what a zero-valued Limits resolves to.
var DefaultLimits = Limits{
	MaxURILen:       8 << 10,
	MaxHeadersBytes: 16 << 10,
	MaxHeadersCount: 100,
	MaxBodyLen:      8 << 20,

	RequestLineTimeout: 10 * time.Second,
	HeadersTimeout:     10 * time.Second,
	BodyTimeout:        30 * time.Second,
}

// WithDefaults returns l with every zero field replaced by the matching
// DefaultLimits field.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits
	if l.MaxURILen == 0 {
		l.MaxURILen = d.MaxURILen
	}
	if l.MaxHeadersBytes == 0 {
		l.MaxHeadersBytes = d.MaxHeadersBytes
	}
	if l.MaxHeadersCount == 0 {
		l.MaxHeadersCount = d.MaxHeadersCount
	}
	if l.MaxBodyLen == 0 {
		l.MaxBodyLen = d.MaxBodyLen
	}
	if l.RequestLineTimeout == 0 {
		l.RequestLineTimeout = d.RequestLineTimeout
	}
	if l.HeadersTimeout == 0 {
		l.HeadersTimeout = d.HeadersTimeout
	}
	if l.BodyTimeout == 0 {
		l.BodyTimeout = d.BodyTimeout
	}
	return l
}
