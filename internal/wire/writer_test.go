/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucentsrv/lucent/hdr"
)

func writeResponse(t *testing.T, status int, h hdr.Header, body string, suppress bool) string {
	t.Helper()
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	err := WriteResponse(bw, "HTTP/1.1", status, h, strings.NewReader(body), int64(len(body)), suppress)
	require.NoError(t, err)
	return buf.String()
}

func TestWriteResponseFraming(t *testing.T) {
	out := writeResponse(t, 200, hdr.Header{hdr.ContentType: {"text/plain"}}, "hi", false)

	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Length: 2\r\n")
	assert.Contains(t, out, "Content-Type: text/plain\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nhi"))
}

func TestWriteResponseDeterministicHeaderOrder(t *testing.T) {
	h := func() hdr.Header {
		return hdr.Header{
			hdr.ContentType: {"text/plain"},
			hdr.Etag:        {`"x"`},
			hdr.Date:        {"Sun, 06 Nov 1994 08:49:37 GMT"},
		}
	}
	first := writeResponse(t, 200, h(), "", false)
	second := writeResponse(t, 200, h(), "", false)
	assert.Equal(t, first, second)
}

func TestWriteResponseNotModifiedHasNoBodyOrLength(t *testing.T) {
	h := hdr.Header{hdr.ContentLength: {"5"}, hdr.Etag: {`"x"`}}
	out := writeResponse(t, 304, h, "hello", false)

	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 304 Not Modified\r\n"))
	assert.NotContains(t, out, "Content-Length")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"))
}

func TestWriteResponseSuppressedBodyKeepsContentLength(t *testing.T) {
	out := writeResponse(t, 200, hdr.Header{}, "hello", true)

	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"), "HEAD response must end after the header block")
}

func TestWriteResponseUnknownStatusGetsPlaceholderReason(t *testing.T) {
	out := writeResponse(t, 299, hdr.Header{}, "", false)
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 299 Status\r\n"))
}
