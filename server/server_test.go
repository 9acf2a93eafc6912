package server

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/lucentsrv/lucent/config"
	"github.com/lucentsrv/lucent/internal/basicauth"
	"github.com/lucentsrv/lucent/internal/respgen"
	"github.com/lucentsrv/lucent/internal/wire"
)

func testContext(t *testing.T, root string) *respgen.Context {
	t.Helper()
	rewriter, err := config.NewRegexpRewriter(nil)
	require.NoError(t, err)
	return &respgen.Context{
		Config:     &config.Config{FileRoot: root},
		Templates:  respgen.Templates{Error: respgen.DefaultErrorTemplate},
		Rewriter:   rewriter,
		Verifier:   basicauth.BcryptVerifier{},
		WireLimits: wire.DefaultLimits,
		ServerName: "localhost",
		ServerPort: "80",
	}
}

func TestServerListenAndServeAndShutdown(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "x"), []byte("hello"), 0o644))
	rc := testContext(t, root)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	srv := &Server{
		Addr:       addr,
		Context:    rc,
		MaxConns:   8,
		ShutdownBy: 2 * time.Second,
	}
	srv.active = make(map[net.Conn]struct{})
	srv.done = make(chan struct{})
	srv.sem = semaphore.NewWeighted(8)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Write([]byte("GET /x HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "200")
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	err = <-errCh
	assert.Equal(t, ErrServerClosed, err)
}
