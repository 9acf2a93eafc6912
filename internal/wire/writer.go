/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bufio"
	"fmt"
	"io"

	"github.com/lucentsrv/lucent/hdr"
)

// StatusText maps a subset of status codes to their canonical reason
// phrase. Only codes lucent itself emits are listed.
var StatusText = map[int]string{
	200: "OK",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	412: "Precondition Failed",
	413: "Payload Too Large",
	414: "URI Too Long",
	415: "Unsupported Media Type",
	416: "Range Not Satisfiable",
	417: "Expectation Failed",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

// WriteResponse writes a status line, headers, and body to w, framing the
// body with the Content-Length already present in h (or computed from
// bodyLen if absent). 1xx/204/304 responses never carry a body or
// Content-Length, and HEAD responses carry Content-Length but no body
// bytes.
func WriteResponse(w *bufio.Writer, proto string, status int, h hdr.Header, body io.Reader, bodyLen int64, suppressBody bool) error {
	reason := StatusText[status]
	if reason == "" {
		reason = "Status"
	}
	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", proto, status, reason); err != nil {
		return err
	}

	noBody := status/100 == 1 || status == 204 || status == 304
	if noBody {
		h.Del(hdr.ContentLength)
	} else if h.Get(hdr.ContentLength) == "" {
		h.Set(hdr.ContentLength, fmt.Sprintf("%d", bodyLen))
	}

	if err := h.Write(w); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}

	if noBody || suppressBody || body == nil {
		return w.Flush()
	}
	if _, err := io.CopyN(w, body, bodyLen); err != nil && err != io.EOF {
		return err
	}
	return w.Flush()
}
