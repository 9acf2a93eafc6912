package config

import "regexp"

// Rewriter applies a route table to a raw request path: given a raw
// request path, return either the rewritten path or the original. The
// interface keeps the rewrite engine pluggable; RegexpRewriter is the
// default implementation shipped with this package.
type Rewriter interface {
	Rewrite(rawPath string) string
}

// compiledRoute is one pattern/replacement pair with its regexp
// pre-compiled at load time.
type compiledRoute struct {
	re          *regexp.Regexp
	replacement string
}

// RegexpRewriter applies an ordered sequence of regexp
// pattern/replacement pairs, stopping at the first pattern that matches.
type RegexpRewriter struct {
	routes []compiledRoute
}

// NewRegexpRewriter compiles table into a Rewriter. table entries with
// an invalid pattern are rejected by config.Load's validation before
// this is ever called, so compilation here is assumed to succeed.
func NewRegexpRewriter(table []RoutePattern) (*RegexpRewriter, error) {
	routes := make([]compiledRoute, 0, len(table))
	for _, rp := range table {
		re, err := regexp.Compile(rp.Pattern)
		if err != nil {
			return nil, err
		}
		routes = append(routes, compiledRoute{re: re, replacement: rp.Replacement})
	}
	return &RegexpRewriter{routes: routes}, nil
}

// Rewrite applies the first matching route's substitution, or returns
// rawPath unchanged if nothing matches.
func (rr *RegexpRewriter) Rewrite(rawPath string) string {
	for _, route := range rr.routes {
		if route.re.MatchString(rawPath) {
			return route.re.ReplaceAllString(rawPath, route.replacement)
		}
	}
	return rawPath
}
