/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bufio"
	"io"
)

// boundedReader yields exactly remaining bytes of a Content-Length-framed
// body and then io.EOF. It never reads past the body's final byte, so a
// pipelined request queued behind the body stays in the buffered reader
// for the next transaction.
type boundedReader struct {
	r         io.Reader
	remaining int64
	err       error
}

func (l *boundedReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.remaining <= 0 {
		l.err = io.EOF
		return 0, l.err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	if isTimeout(err) {
		err = ErrTimeout
	} else if err == io.EOF && int64(n) < l.remaining {
		// The peer closed mid-body; the declared length was a lie.
		err = io.ErrUnexpectedEOF
	}
	l.remaining -= int64(n)
	l.err = err
	return n, err
}

// ReadBody returns a reader for the request body, honoring Content-Length
// framing or chunked transfer-encoding, bounded by lim.MaxBodyLen either
// way. contentLength is -1 when no Content-Length header was present.
func ReadBody(br *bufio.Reader, chunked bool, contentLength int64, lim Limits) (io.Reader, error) {
	switch {
	case chunked:
		return &chunkedReader{br: br, lim: lim}, nil
	case contentLength <= 0:
		return io.LimitReader(new(zeroReader), 0), nil
	case contentLength > lim.MaxBodyLen:
		return nil, ErrBodyTooLarge
	default:
		return &boundedReader{r: br, remaining: contentLength}, nil
	}
}

type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, io.EOF }
