/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// chunkedReader decodes a chunked request body (RFC 7230 §4.1), bounded by
// lim.MaxBodyLen decoded bytes regardless of how the wire-side chunking is
// shaped.
type chunkedReader struct {
	br    *bufio.Reader
	lim   Limits
	n     uint64 // bytes left in current chunk
	total int64  // decoded bytes seen so far
	err   error
}

func (cr *chunkedReader) beginChunk() {
	line, err := readChunkLine(cr.br)
	if err != nil {
		cr.err = err
		return
	}
	cr.n, cr.err = parseHexChunkSize(line)
	if cr.err != nil {
		return
	}
	if cr.n == 0 {
		cr.err = io.EOF
		// Trailer block, bounded the same as the header block.
		if _, terr := ReadHeaderBlock(cr.br, cr.lim); terr != nil && !errors.Is(terr, io.EOF) {
			cr.err = terr
		}
	}
}

func (cr *chunkedReader) Read(b []byte) (n int, err error) {
	for cr.err == nil {
		if cr.n == 0 {
			cr.beginChunk()
			continue
		}
		if len(b) == 0 {
			return n, nil
		}
		rslice := b
		if uint64(len(rslice)) > cr.n {
			rslice = rslice[:cr.n]
		}
		var rn int
		rn, cr.err = cr.br.Read(rslice)
		if isTimeout(cr.err) {
			cr.err = ErrTimeout
		}
		n += rn
		b = b[rn:]
		cr.n -= uint64(rn)
		cr.total += int64(rn)
		if cr.total > cr.lim.MaxBodyLen {
			cr.err = ErrBodyTooLarge
			return n, cr.err
		}
		if cr.n == 0 && cr.err == nil {
			// consume trailing CRLF after chunk-data
			if _, cr.err = cr.br.Discard(2); cr.err != nil {
				break
			}
		}
		if len(b) == 0 {
			return n, nil
		}
	}
	return n, cr.err
}

func readChunkLine(b *bufio.Reader) ([]byte, error) {
	p, err := b.ReadSlice('\n')
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		} else if err == bufio.ErrBufferFull {
			err = ErrMalformedSyntax
		} else if isTimeout(err) {
			err = ErrTimeout
		}
		return nil, err
	}
	p = trimTrailingWhitespace(p)
	p, err = removeChunkExtension(p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func trimTrailingWhitespace(b []byte) []byte {
	for len(b) > 0 && isASCIISpaceByte(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

func isASCIISpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// removeChunkExtension strips a ";token[=value]" chunk-extension; lucent
// has no use for chunk extensions and ignores their content.
func removeChunkExtension(p []byte) ([]byte, error) {
	if semi := bytes.IndexByte(p, ';'); semi != -1 {
		return p[:semi], nil
	}
	return p, nil
}

func parseHexChunkSize(v []byte) (uint64, error) {
	if len(v) == 0 {
		return 0, ErrMalformedSyntax
	}
	var n uint64
	for i, b := range v {
		var d byte
		switch {
		case '0' <= b && b <= '9':
			d = b - '0'
		case 'a' <= b && b <= 'f':
			d = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			d = b - 'A' + 10
		default:
			return 0, ErrMalformedSyntax
		}
		if i == 16 {
			return 0, ErrMalformedSyntax
		}
		n <<= 4
		n |= uint64(d)
	}
	return n, nil
}
