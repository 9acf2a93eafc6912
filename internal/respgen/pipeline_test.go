package respgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucentsrv/lucent/config"
	"github.com/lucentsrv/lucent/hdr"
	"github.com/lucentsrv/lucent/internal/basicauth"
	"github.com/lucentsrv/lucent/internal/reqparse"
	"github.com/lucentsrv/lucent/internal/wire"
)

func testContext(t *testing.T, root string) *Context {
	t.Helper()
	rewriter, err := config.NewRegexpRewriter(nil)
	require.NoError(t, err)
	return &Context{
		Config:     &config.Config{FileRoot: root},
		Templates:  Templates{Error: DefaultErrorTemplate},
		Rewriter:   rewriter,
		Verifier:   basicauth.BcryptVerifier{},
		WireLimits: wire.DefaultLimits,
		CGITimeout: 0,
		ServerName: "localhost",
		ServerPort: "80",
	}
}

func baseRequest(method, path string) *reqparse.Request {
	return &reqparse.Request{
		Method:        method,
		Path:          path,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        hdr.Header{},
		ContentLength: -1,
	}
}

func TestGenerateServesIndexHTML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644))

	rc := testContext(t, root)
	req := baseRequest(reqparse.GET, "/")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get(hdr.ContentType))
	assert.Equal(t, "2", resp.Header.Get(hdr.ContentLength))
	assert.NotEmpty(t, resp.Header.Get(hdr.Etag))
}

func TestGenerateDirectoryListing(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.txt"), []byte("bbbbb"), 0o644))

	rc := testContext(t, root)
	req := baseRequest(reqparse.GET, "/sub/")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 200, resp.Status)
	body := readAll(t, resp)
	assert.Contains(t, body, "a.txt")
	assert.Contains(t, body, "b.txt")
}

func TestGenerateDirectoryRedirect(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	rc := testContext(t, root)
	req := baseRequest(reqparse.GET, "/sub")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 301, resp.Status)
	assert.Equal(t, "/sub/", resp.Header.Get(hdr.Location))
}

func TestGeneratePathEscapeIs404(t *testing.T) {
	root := t.TempDir()
	rc := testContext(t, root)
	req := baseRequest(reqparse.GET, "")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())
	assert.Equal(t, 404, resp.Status)
}

func TestGenerateRangeRequest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), []byte("0123456789"), 0o644))

	rc := testContext(t, root)
	req := baseRequest(reqparse.GET, "/big.bin")
	req.Header.Set(hdr.Range, "bytes=0-0,-1")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 206, resp.Status)
	assert.Contains(t, resp.Header.Get(hdr.ContentType), "multipart/byteranges")
	body := readAll(t, resp)
	assert.Contains(t, body, "bytes 0-0/10")
	assert.Contains(t, body, "bytes 9-9/10")
}

func TestGenerateRangeRequestHonorsConfiguredMaxRanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), []byte("0123456789"), 0o644))

	rc := testContext(t, root)
	rc.MaxRanges = 1
	req := baseRequest(reqparse.GET, "/big.bin")
	req.Header.Set(hdr.Range, "bytes=0-0,-1")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 416, resp.Status)
	assert.Equal(t, "bytes */10", resp.Header.Get(hdr.ContentRange))
}

func TestGenerateConditionalNotModified(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), []byte("hello"), 0o644))

	rc := testContext(t, root)
	first := Generate(context.Background(), rc, baseRequest(reqparse.GET, "/file"), nil, ConnInfo{}, time.Now())
	etag := first.Header.Get(hdr.Etag)
	require.NotEmpty(t, etag)

	req := baseRequest(reqparse.GET, "/file")
	req.Header.Set(hdr.IfNoneMatch, etag)
	second := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 304, second.Status)
	assert.Equal(t, etag, second.Header.Get(hdr.Etag))
	assert.Nil(t, second.Body)
}

func TestGenerateAuthRequired(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "protected"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "protected", "x"), []byte("secret"), 0o644))

	rc := testContext(t, root)
	rc.AuthRules = []basicauth.Rule{{Prefix: "/protected", Realm: "r", Users: map[string]string{"alice": "hash"}}}

	req := baseRequest(reqparse.GET, "/protected/x")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 401, resp.Status)
	assert.Contains(t, resp.Header.Get(hdr.WwwAuthenticate), `realm="r"`)
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "x"), []byte("hi"), 0o644))

	rc := testContext(t, root)
	req := baseRequest(reqparse.PUT, "/x")
	resp := Generate(context.Background(), rc, req, nil, ConnInfo{}, time.Now())

	assert.Equal(t, 405, resp.Status)
	assert.Equal(t, "GET, HEAD", resp.Header.Get(hdr.Allow))
}

func TestGenerateHeadHasNoBodyButSameHeaders(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "x"), []byte("hello"), 0o644))

	rc := testContext(t, root)
	get := Generate(context.Background(), rc, baseRequest(reqparse.GET, "/x"), nil, ConnInfo{}, time.Now())
	head := Generate(context.Background(), rc, baseRequest(reqparse.HEAD, "/x"), nil, ConnInfo{}, time.Now())

	assert.Equal(t, get.Header.Get(hdr.ContentLength), head.Header.Get(hdr.ContentLength))
	assert.True(t, head.SuppressBody)
}

func readAll(t *testing.T, resp *Response) string {
	t.Helper()
	if resp.Body == nil {
		return ""
	}
	buf := make([]byte, resp.BodyLen)
	n, _ := resp.Body.Read(buf)
	for int64(n) < resp.BodyLen {
		more, err := resp.Body.Read(buf[n:])
		n += more
		if err != nil {
			break
		}
	}
	return string(buf[:n])
}
