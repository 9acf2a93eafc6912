/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package respgen orchestrates the per-request middleware chain,
// binding routing, auth, conditionals, range selection, directory
// listing, and CGI execution into one ordered pass that produces a
// Response.
package respgen

import (
	"html/template"
	"time"

	"github.com/lucentsrv/lucent/config"
	"github.com/lucentsrv/lucent/internal/basicauth"
	"github.com/lucentsrv/lucent/internal/cgi"
	"github.com/lucentsrv/lucent/internal/wire"
)

// ServerToken is the Server response header value.
const ServerToken = "lucent/1.0"

// Templates holds the two pre-parsed page templates, owned by the
// server for its lifetime.
type Templates struct {
	Error      *template.Template // placeholders: .Server, .Status
	DirListing *template.Template // placeholders: .Path, .Entries
}

// ErrorPageData is the substitution value for the error template.
type ErrorPageData struct {
	Server string
	Status string // "<code> <reason>"
}

// ConnInfo is the per-connection context: remote/local address and
// whether the connection is TLS. Created at accept time, read-only
// thereafter.
type ConnInfo struct {
	RemoteAddr string
	LocalAddr  string
	TLS        bool
}

// Context bundles everything the response generator needs that isn't
// part of the Request itself: the server's read-only configuration and
// its external collaborators (route rewriter, auth password verifier,
// CGI invoker). One Context is built per server and shared by every
// connection's goroutine; nothing in it is mutated after construction.
type Context struct {
	Config     *config.Config
	Templates  Templates
	Rewriter   config.Rewriter
	Verifier   basicauth.Verifier
	AuthRules  []basicauth.Rule
	CGIInvoker cgi.Invoker
	WireLimits wire.Limits
	MaxRanges  int // soft cap on byte-range-specs per request
	CGITimeout time.Duration
	ServerName string // for RFC 3875 SERVER_NAME / SERVER_PORT
	ServerPort string
}

// NewContext assembles a Context from a loaded Config, compiling the
// route table and auth rules once at startup so the hot path never
// touches regexp.Compile or string parsing.
func NewContext(cfg *config.Config, tmpl Templates, serverName, serverPort string) (*Context, error) {
	rewriter, err := config.NewRegexpRewriter(cfg.RoutingTable)
	if err != nil {
		return nil, err
	}
	rules := make([]basicauth.Rule, len(cfg.AuthRules))
	for i, r := range cfg.AuthRules {
		rules[i] = basicauth.Rule{Prefix: r.PathPrefix, Realm: r.Realm, Users: r.Users}
	}
	return &Context{
		Config:     cfg,
		Templates:  tmpl,
		Rewriter:   rewriter,
		Verifier:   basicauth.BcryptVerifier{},
		AuthRules:  rules,
		CGIInvoker: cgi.Exec{},
		WireLimits: cfg.WireLimits(),
		MaxRanges:  cfg.MaxRanges(),
		CGITimeout: cfg.CGITimeout(),
		ServerName: serverName,
		ServerPort: serverPort,
	}, nil
}
