/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package connd implements the per-connection driver: a parse ->
// dispatch -> respond loop with keep-alive, idle-timeout, and
// pipelining-cap semantics. Requests on one connection are strictly
// serialized; responses go out in request order.
package connd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lucentsrv/lucent/hdr"
	"github.com/lucentsrv/lucent/internal/herr"
	"github.com/lucentsrv/lucent/internal/reqparse"
	"github.com/lucentsrv/lucent/internal/respgen"
	"github.com/lucentsrv/lucent/internal/wire"
)

// Logger is the minimal logging surface connd needs; package logging
// provides the zap-backed implementation used in production.
type Logger interface {
	Warn(msg string)
}

type noopLogger struct{}

func (noopLogger) Warn(string) {}

// Options configures one connection's lifetime, all sourced from the
// server's Config.
type Options struct {
	Limits             wire.Limits
	IdleTimeout        time.Duration
	MaxRequestsPerConn int
	Logger             Logger
}

// Serve runs the request/response loop over nc until the connection
// closes, the client asks for Connection: close, the idle timeout fires
// with no pending bytes, the per-connection request cap is reached, or
// ctx is canceled (server shutdown). It always closes nc before
// returning.
func Serve(ctx context.Context, nc net.Conn, rc *respgen.Context, ci respgen.ConnInfo, opt Options) {
	defer nc.Close()

	if opt.Logger == nil {
		opt.Logger = noopLogger{}
	}
	lim := opt.Limits.WithDefaults()
	maxRequests := opt.MaxRequestsPerConn
	if maxRequests <= 0 {
		maxRequests = 100
	}

	br := bufio.NewReader(nc)
	bw := bufio.NewWriter(nc)

	for n := 0; maxRequests <= 0 || n < maxRequests; n++ {
		if ctx.Err() != nil {
			return
		}

		proto, req, body, fatal, ok := readOne(nc, br, lim)
		if !ok {
			if fatal != nil {
				opt.Logger.Warn(LogConnError(nc.RemoteAddr().String(), fatal))
				writeErrorResponse(bw, proto, rc, fatal)
			}
			return
		}

		if req.ExpectContinue {
			if _, err := bw.WriteString("HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
		}

		resp := respgen.Generate(ctx, rc, req, body, ci, time.Now())

		closeAfter := req.WantsClose || resp.Close || n == maxRequests-1
		if closeAfter {
			resp.Header.Set(hdr.Connection, "close")
		} else if req.ProtoMajor == 1 && req.ProtoMinor == 0 {
			// An HTTP/1.0 client only keeps the connection open if the
			// server says so explicitly.
			resp.Header.Set(hdr.Connection, "keep-alive")
		}

		nc.SetWriteDeadline(time.Now().Add(lim.BodyTimeout))
		err := wire.WriteResponse(bw, req.Proto, resp.Status, resp.Header, resp.Body, resp.BodyLen, resp.SuppressBody)
		if c, ok := resp.Body.(io.Closer); ok {
			c.Close()
		}
		if err != nil {
			opt.Logger.Warn(LogConnError(nc.RemoteAddr().String(), err))
			return
		}

		if closeAfter {
			return
		}

		// Drain whatever the pipeline left of the request body so the next
		// pipelined request starts at a message boundary.
		if body != nil {
			if _, err := io.Copy(io.Discard, body); err != nil {
				return
			}
		}

		if opt.IdleTimeout > 0 {
			nc.SetReadDeadline(time.Now().Add(opt.IdleTimeout))
			if _, err := br.Peek(1); err != nil {
				return
			}
			nc.SetReadDeadline(time.Time{})
		}
	}
}

// readOne reads and validates exactly one request off br. ok is false
// when the loop must stop: either the connection is done cleanly (EOF
// with nothing read, fatal == nil) or a framing-fatal error occurred
// (fatal != nil) that must be rendered and the connection closed.
func readOne(nc net.Conn, br *bufio.Reader, lim wire.Limits) (proto string, req *reqparse.Request, body io.Reader, fatal *herr.HTTPError, ok bool) {
	proto = "HTTP/1.1"

	nc.SetReadDeadline(time.Now().Add(lim.RequestLineTimeout))
	rl, err := wire.ReadRequestLine(br, lim)
	if err != nil {
		if isCleanEOF(err) {
			return proto, nil, nil, nil, false
		}
		return proto, nil, nil, wireError(err), false
	}
	if rl.Proto == "HTTP/1.0" || rl.Proto == "HTTP/1.1" {
		// Anything else keeps the HTTP/1.1 default so an error response
		// for an unsupported version doesn't echo garbage in its status
		// line.
		proto = rl.Proto
	}

	nc.SetReadDeadline(time.Now().Add(lim.HeadersTimeout))
	h, err := wire.ReadHeaderBlock(br, lim)
	if err != nil {
		return proto, nil, nil, wireError(err), false
	}

	parsed, herrv := reqparse.Parse(rl, h)
	if herrv != nil {
		return proto, nil, nil, herrv, false
	}
	proto = parsed.Proto

	nc.SetReadDeadline(time.Now().Add(lim.BodyTimeout))
	bodyReader, err := wire.ReadBody(br, parsed.Chunked, parsed.ContentLength, lim)
	if err != nil {
		return proto, nil, nil, wireError(err), false
	}

	return proto, parsed, bodyReader, nil, true
}

func isCleanEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// wireError maps a wire-codec failure to its canonical status.
func wireError(err error) *herr.HTTPError {
	switch {
	case errors.Is(err, wire.ErrUriTooLong):
		return herr.New(414, "request-target too long")
	case errors.Is(err, wire.ErrHeaderTooLong), errors.Is(err, wire.ErrHeadersTooMany):
		return herr.New(431, "header block too large")
	case errors.Is(err, wire.ErrBodyTooLarge):
		return herr.New(413, "request body too large")
	case errors.Is(err, wire.ErrUnsupportedTransferEncoding):
		return herr.New(501, "unsupported transfer-encoding")
	case errors.Is(err, wire.ErrTimeout):
		return herr.New(408, "request timeout")
	case errors.Is(err, wire.ErrMalformedSyntax):
		return herr.New(400, "malformed request")
	default:
		return herr.New(400, "malformed request")
	}
}

func writeErrorResponse(bw *bufio.Writer, proto string, rc *respgen.Context, e *herr.HTTPError) {
	resp := respgen.RenderError(rc, e, time.Now())
	resp.Header.Set(hdr.Connection, "close")
	if err := wire.WriteResponse(bw, proto, resp.Status, resp.Header, resp.Body, resp.BodyLen, false); err != nil {
		return
	}
}

// LogConnError renders a one-line warning for an unexpected per-connection
// failure, in the style the server package's zap logger expects.
func LogConnError(remoteAddr string, err error) string {
	return fmt.Sprintf("connection error from %s: %v", remoteAddr, err)
}
