/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestReadRequestLine(t *testing.T) {
	rl, err := ReadRequestLine(reader("GET /index.html HTTP/1.1\r\n"), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "GET", rl.Method)
	assert.Equal(t, "/index.html", rl.Target)
	assert.Equal(t, "HTTP/1.1", rl.Proto)
}

func TestReadRequestLineToleratesOneLeadingBlankLine(t *testing.T) {
	rl, err := ReadRequestLine(reader("\r\nGET / HTTP/1.0\r\n"), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "GET", rl.Method)
	assert.Equal(t, "HTTP/1.0", rl.Proto)
}

func TestReadRequestLineTooLong(t *testing.T) {
	lim := DefaultLimits
	lim.MaxURILen = 10
	_, err := ReadRequestLine(reader("GET /a/very/long/path HTTP/1.1\r\n"), lim)
	assert.ErrorIs(t, err, ErrUriTooLong)
}

func TestReadRequestLineMalformed(t *testing.T) {
	_, err := ReadRequestLine(reader("GET/HTTP/1.1\r\n"), DefaultLimits)
	assert.ErrorIs(t, err, ErrMalformedSyntax)
}

func TestReadHeaderBlock(t *testing.T) {
	h, err := ReadHeaderBlock(reader("Host: example.com\r\nAccept: a\r\nAccept: b\r\n\r\n"), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "example.com", h.Get("Host"))
	assert.Equal(t, []string{"a", "b"}, h["Accept"])
}

func TestReadHeaderBlockCanonicalizesNames(t *testing.T) {
	h, err := ReadHeaderBlock(reader("content-length: 5\r\n\r\n"), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "5", h.Get("Content-Length"))
}

func TestReadHeaderBlockObsFold(t *testing.T) {
	h, err := ReadHeaderBlock(reader("X-Long: one\r\n two\r\n\r\n"), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, "one two", h.Get("X-Long"))
}

func TestReadHeaderBlockTooManyHeaders(t *testing.T) {
	lim := DefaultLimits
	lim.MaxHeadersCount = 1
	_, err := ReadHeaderBlock(reader("A: 1\r\nB: 2\r\n\r\n"), lim)
	assert.ErrorIs(t, err, ErrHeadersTooMany)
}

func TestReadHeaderBlockTooLarge(t *testing.T) {
	lim := DefaultLimits
	lim.MaxHeadersBytes = 16
	_, err := ReadHeaderBlock(reader("X-Padding: "+strings.Repeat("a", 64)+"\r\n\r\n"), lim)
	assert.ErrorIs(t, err, ErrHeaderTooLong)
}

func TestReadHeaderBlockInvalidName(t *testing.T) {
	_, err := ReadHeaderBlock(reader("Bad Name: x\r\n\r\n"), DefaultLimits)
	assert.ErrorIs(t, err, ErrMalformedSyntax)

	_, err = ReadHeaderBlock(reader("NoColonHere\r\n\r\n"), DefaultLimits)
	assert.ErrorIs(t, err, ErrMalformedSyntax)
}
