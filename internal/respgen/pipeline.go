/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package respgen

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lucentsrv/lucent/hdr"
	"github.com/lucentsrv/lucent/internal/basicauth"
	"github.com/lucentsrv/lucent/internal/cgi"
	"github.com/lucentsrv/lucent/internal/cond"
	"github.com/lucentsrv/lucent/internal/dirlist"
	"github.com/lucentsrv/lucent/internal/herr"
	"github.com/lucentsrv/lucent/internal/reqparse"
	"github.com/lucentsrv/lucent/internal/rng"
	"github.com/lucentsrv/lucent/internal/wire"
)

// Response is the final value the connection driver writes to the wire:
// status, headers, and a body stream of known length. Close is set when
// this transaction must end the connection regardless of what the
// request otherwise asked for.
type Response struct {
	Status       int
	Header       hdr.Header
	Body         io.Reader
	BodyLen      int64
	SuppressBody bool // true for HEAD: headers describe the GET body, but none is sent
	Close        bool
}

// Generate runs the middleware chain (method gate, rewrite, auth, path
// resolution, open, directory/CGI branch, conditionals, range, emit)
// against req, producing the Response to write back. body is the already-framed
// request body (from wire.ReadBody); it is only consulted for CGI
// invocations. now is injected so the Date header is deterministic under
// test.
func Generate(ctx context.Context, rc *Context, req *reqparse.Request, body io.Reader, ci ConnInfo, now time.Time) *Response {
	resp, herrv := generate(ctx, rc, req, body, ci, now)
	if herrv != nil {
		return RenderError(rc, herrv, now)
	}
	finalize(resp, req, now)
	return resp
}

var methodAllowed = map[string]bool{
	reqparse.GET: true, reqparse.HEAD: true, reqparse.POST: true,
	reqparse.PUT: true, reqparse.DELETE: true, reqparse.PATCH: true,
}

// generate is the inner pipeline; each stage either continues, completes
// with a Response, or fails with an HTTPError that the caller renders
// through the error template. Response and HTTPError are mutually
// exclusive.
func generate(ctx context.Context, rc *Context, req *reqparse.Request, body io.Reader, ci ConnInfo, now time.Time) (*Response, *herr.HTTPError) {
	// Step 1: method gate. PUT/DELETE/PATCH/POST are only serviceable via
	// CGI, checked again after path resolution (step 7); a method outside
	// this set is never servable at all.
	if !methodAllowed[req.Method] {
		return nil, methodNotAllowed()
	}

	// A request-target that normalized outside the root (reqparse.Parse
	// cleared Path to "") never reaches the filesystem.
	if req.Path == "" {
		return nil, herr.New(404, "path escapes file root")
	}

	// Step 2: URL rewrite.
	routedPath := rc.Rewriter.Rewrite(req.Path)

	// Step 3: auth check.
	if rule, ok := basicauth.Match(rc.AuthRules, routedPath); ok {
		if !basicauth.Check(req.Header, rule, rc.Verifier) {
			return nil, unauthorized(rule.Realm)
		}
	}

	// Step 4: path resolution + containment.
	fsPath, ok := resolvePath(rc.Config.FileRoot, routedPath)
	if !ok {
		return nil, herr.New(404, "path escapes file root")
	}

	// Step 5: open target.
	f, fi, herrv := openTarget(fsPath)
	if herrv != nil {
		return nil, herrv
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	// Step 6: directory handling.
	if fi.IsDir() {
		if dirlist.NeedsRedirect(routedPath) {
			f.Close()
			f = nil
			return redirectToSlash(routedPath), nil
		}
		if indexPath, hasIndex := dirlist.HasIndex(fsPath); hasIndex {
			f.Close()
			var herrv *herr.HTTPError
			f, fi, herrv = openTarget(indexPath)
			if herrv != nil {
				return nil, herrv
			}
			fsPath = indexPath
		} else {
			resp, herrv := renderListing(rc, fsPath, routedPath)
			if resp != nil {
				resp.SuppressBody = req.Method == reqparse.HEAD
			}
			return resp, herrv
		}
	}

	// Step 7: CGI dispatch.
	if isCGI, nph := cgiMatch(fsPath); isCGI {
		return runCGI(ctx, rc, req, body, fsPath, routedPath, ci, nph)
	}

	if req.Method != reqparse.GET && req.Method != reqparse.HEAD {
		return nil, methodNotAllowed()
	}

	// Step 8: validators.
	modTime := fi.ModTime()
	lastModified := formatModTime(modTime)
	etag := computeETag(lastModified)
	size := fi.Size()

	// Step 9: conditional check.
	rangeHeader := req.Header.Get(hdr.Range)
	hasRange := rangeHeader != ""
	result := cond.Evaluate(req.Header, cond.Validators{ETag: etag, ModTime: modTime}, true, req.Method, hasRange)

	switch result {
	case cond.FailPositive:
		return nil, herr.New(412, "precondition failed")
	case cond.FailNegative:
		f.Close()
		f = nil
		return notModified(etag, lastModified), nil
	case cond.RangeIgnore:
		hasRange = false
	}

	contentType := contentTypeFor(fsPath)

	// Step 10/11: body + range selection.
	if hasRange {
		ranges, err := rng.Parse(rangeHeader, size, rc.MaxRanges)
		if err != nil {
			h := rng.Unsatisfiable(size)
			h.Set(hdr.ContentType, contentType)
			f.Close()
			f = nil
			return &Response{Status: 416, Header: h, Body: nil, BodyLen: 0}, nil
		}
		rr, err := rng.Apply(ranges, contentType, size, f)
		if err != nil {
			return nil, herr.New(500, "range assembly failed")
		}
		rr.Header.Set(hdr.Etag, etag)
		rr.Header.Set(hdr.LastModified, lastModified)
		rr.Header.Set(hdr.AcceptRanges, "bytes")
		rr.Header.Set(hdr.ContentLength, strconv.FormatInt(rr.Length, 10))
		if req.Method == reqparse.HEAD {
			// Same headers a GET would carry, no body; the deferred close
			// releases f since no goroutine takes it over.
			return &Response{Status: rr.Status, Header: rr.Header, BodyLen: rr.Length, SuppressBody: true}, nil
		}
		openFile := f
		f = nil // ownership moves to the pipe goroutine below
		return &Response{
			Status:  rr.Status,
			Header:  rr.Header,
			Body:    streamingReader(rr.Write, openFile),
			BodyLen: rr.Length,
		}, nil
	}

	h := hdr.Header{
		hdr.ContentType:   {contentType},
		hdr.ContentLength: {strconv.FormatInt(size, 10)},
		hdr.Etag:          {etag},
		hdr.LastModified:  {lastModified},
		hdr.AcceptRanges:  {"bytes"},
	}
	if req.Method == reqparse.HEAD {
		return &Response{Status: 200, Header: h, BodyLen: size, SuppressBody: true}, nil
	}
	openFile := f
	f = nil // closed by the connection driver once the body is written
	return &Response{
		Status:  200,
		Header:  h,
		Body:    openFile,
		BodyLen: size,
	}, nil
}

// finalize adds the headers every response carries regardless of which
// pipeline stage produced it: Date (always) and Server (unless a CGI
// script already set one).
func finalize(resp *Response, req *reqparse.Request, now time.Time) {
	if resp.Header == nil {
		resp.Header = hdr.Header{}
	}
	resp.Header.Set(hdr.Date, now.UTC().Format(hdr.TimeFormat))
	if resp.Header.Get(hdr.ServerHeader) == "" {
		resp.Header.Set(hdr.ServerHeader, ServerToken)
	}
}

func methodNotAllowed() *herr.HTTPError {
	return herr.New(405, "method not allowed")
}

func unauthorized(realm string) *herr.HTTPError {
	e := herr.New(401, "authentication required")
	e.Header = hdr.Header{hdr.WwwAuthenticate: {basicauth.Challenge(realm)}}
	return e
}

// resolvePath joins root with routedPath and verifies the result is still
// lexically inside root. routedPath has already been through reqparse's
// "."/".." resolution once, but a rewrite rule can reintroduce traversal
// segments, so this re-checks after routing too.
func resolvePath(root, routedPath string) (string, bool) {
	joined := filepath.Join(root, filepath.FromSlash(routedPath))
	cleanRoot := filepath.Clean(root)
	if joined == cleanRoot {
		return joined, true
	}
	if strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return joined, true
	}
	return "", false
}

func openTarget(fsPath string) (*os.File, os.FileInfo, *herr.HTTPError) {
	f, err := os.Open(fsPath)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, nil, herr.New(404, "not found")
		case os.IsPermission(err):
			return nil, nil, herr.New(403, "permission denied")
		default:
			return nil, nil, herr.New(500, "open failed")
		}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, herr.New(500, "stat failed")
	}
	return f, fi, nil
}

func redirectToSlash(routedPath string) *Response {
	return &Response{
		Status: 301,
		Header: hdr.Header{hdr.Location: {routedPath + "/"}},
	}
}

func notModified(etag, lastModified string) *Response {
	return &Response{
		Status: 304,
		Header: hdr.Header{
			hdr.Etag:         {etag},
			hdr.LastModified: {lastModified},
		},
	}
}

func renderListing(rc *Context, fsPath, routedPath string) (*Response, *herr.HTTPError) {
	var buf bytes.Buffer
	tmpl := rc.Templates.DirListing
	if err := dirlist.Render(&buf, tmpl, fsPath, routedPath); err != nil {
		return nil, herr.New(500, "rendering directory listing")
	}
	return &Response{
		Status:  200,
		Header:  dirlist.Headers(int64(buf.Len())),
		Body:    &buf,
		BodyLen: int64(buf.Len()),
	}, nil
}

// cgiMatch reports whether fsPath names a CGI script: the file path minus
// its extension ends in "_cgi" or "_nph_cgi".
func cgiMatch(fsPath string) (isCGI, nph bool) {
	name := filepath.Base(fsPath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	switch {
	case strings.HasSuffix(stem, "_nph_cgi"):
		return true, true
	case strings.HasSuffix(stem, "_cgi"):
		return true, false
	default:
		return false, false
	}
}

func runCGI(ctx context.Context, rc *Context, req *reqparse.Request, body io.Reader, fsPath, routedPath string, ci ConnInfo, nph bool) (*Response, *herr.HTTPError) {
	stdin, herrv := cgiStdin(req, body, rc.WireLimits.MaxBodyLen)
	if herrv != nil {
		return nil, herrv
	}

	cgiReq := cgi.Request{
		ScriptPath:    fsPath,
		PathInfo:      "",
		QueryString:   req.RawQuery,
		Method:        req.Method,
		Header:        req.Header,
		ContentLength: req.ContentLength,
		RemoteAddr:    ci.RemoteAddr,
		ServerName:    rc.ServerName,
		ServerPort:    rc.ServerPort,
		Proto:         req.Proto,
		TLS:           ci.TLS,
		NPH:           nph,
	}
	result, err := cgi.Run(ctx, rc.CGIInvoker, cgiReq, stdin, rc.CGITimeout)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, herr.New(504, "cgi script timed out")
		case errors.Is(err, cgi.ErrScriptFailed):
			return nil, herr.New(500, err.Error())
		default:
			return nil, herr.New(502, "cgi script failed: "+err.Error())
		}
	}
	body2, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, herr.New(502, "cgi script produced an unreadable body")
	}
	if result.Header == nil {
		result.Header = hdr.Header{}
	}
	return &Response{
		Status:       result.Status,
		Header:       result.Header,
		Body:         bytes.NewReader(body2),
		BodyLen:      int64(len(body2)),
		SuppressBody: req.Method == reqparse.HEAD,
	}, nil
}

// cgiStdin prepares the request body for the script's stdin. Chunked
// bodies are buffered fully (bounded by maxBody) first, since a CGI
// script expects Content-Length framing.
func cgiStdin(req *reqparse.Request, body io.Reader, maxBody int64) (io.Reader, *herr.HTTPError) {
	if !req.Chunked {
		return body, nil
	}
	buf, err := io.ReadAll(io.LimitReader(body, maxBody+1))
	if err != nil {
		return nil, herr.New(500, "reading chunked body for cgi")
	}
	if int64(len(buf)) > maxBody {
		return nil, herr.New(413, "request body too large")
	}
	req.ContentLength = int64(len(buf))
	return bytes.NewReader(buf), nil
}

// streamingReader adapts rng.Result.Write (which wants an io.Writer to
// push into) into an io.Reader the wire writer can pull from, so a
// multipart/byteranges body is generated on the fly rather than fully
// materialized. f is closed once the pipe is fully drained (or the
// reader side is closed early on a write failure).
func streamingReader(write func(io.Writer) error, f *os.File) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		err := write(pw)
		f.Close()
		pw.CloseWithError(err)
	}()
	return pr
}

// contentTypeFor derives a media type from fsPath's extension alone; the
// body is never sniffed.
func contentTypeFor(fsPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fsPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// RenderError builds the rendered-error-page Response for e. If the
// error template is unavailable, it falls back to a minimal plain-text
// body with the same status.
func RenderError(rc *Context, e *herr.HTTPError, now time.Time) *Response {
	status := e.Status
	reason := wire.StatusText[status]
	if reason == "" {
		reason = "Error"
	}
	reasonLine := strconv.Itoa(status) + " " + reason

	h := hdr.Header{hdr.ContentType: {"text/html; charset=utf-8"}}
	for k, v := range e.Header {
		if k == hdr.ContentType {
			continue
		}
		h[k] = v
	}
	if e.Close {
		h.Set(hdr.Connection, "close")
	}
	if status == 405 {
		h.Set(hdr.Allow, "GET, HEAD")
	}

	var body []byte
	if rc.Templates.Error != nil {
		var buf bytes.Buffer
		if err := rc.Templates.Error.Execute(&buf, ErrorPageData{Server: ServerToken, Status: reasonLine}); err == nil {
			body = buf.Bytes()
		}
	}
	if body == nil {
		h.Set(hdr.ContentType, "text/plain; charset=utf-8")
		body = []byte(reasonLine)
	}

	resp := &Response{
		Status:  status,
		Header:  h,
		Body:    bytes.NewReader(body),
		BodyLen: int64(len(body)),
		Close:   e.Close,
	}
	finalize(resp, &reqparse.Request{Method: reqparse.GET}, now)
	return resp
}
