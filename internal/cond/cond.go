/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package cond evaluates RFC 7232 §6 conditional-request preconditions
// against a resource's validators.
package cond

import (
	"strings"
	"time"

	"github.com/lucentsrv/lucent/hdr"
)

// Result is the outcome of evaluating all applicable preconditions.
type Result int

const (
	// Pass means no precondition vetoed the request; proceed normally.
	Pass Result = iota
	// FailPositive means a precondition that must hold failed: respond 412.
	FailPositive
	// FailNegative means the resource is unchanged from the client's
	// cached copy: respond 304 (GET/HEAD) or skip the body write.
	FailNegative
	// RangeIgnore means If-Range didn't match: treat the request as if no
	// Range header were present.
	RangeIgnore
)

// Validators describes one resource's current entity-tag and modification
// time; comparisons use whole-second resolution.
type Validators struct {
	ETag    string
	ModTime time.Time
}

// Evaluate runs the RFC 7232 §6 precondition state machine.
// method is the request method (GET/HEAD get weak If-None-Match/If-Modified-Since
// treatment turning into 304; other methods turn a match into 412).
// hasRange reports whether the request also carries a Range header, which
// gates whether If-Range is consulted at all.
func Evaluate(h hdr.Header, v Validators, resourceExists bool, method string, hasRange bool) Result {
	if im := h.Values(hdr.IfMatch); len(im) > 0 {
		if !matchesAny(im, v.ETag, true) {
			return FailPositive
		}
	} else if ius := h.Get(hdr.IfUnmodifiedSince); ius != "" {
		if t, err := hdr.ParseTime(ius); err == nil {
			if v.ModTime.Truncate(time.Second).After(t) {
				return FailPositive
			}
		}
	}

	isGetOrHead := method == "GET" || method == "HEAD"

	if inm := h.Values(hdr.IfNoneMatch); len(inm) > 0 {
		matched := matchesAny(inm, v.ETag, false) || (hasStar(inm) && resourceExists)
		if matched {
			if isGetOrHead {
				return FailNegative
			}
			return FailPositive
		}
	} else if isGetOrHead {
		if ims := h.Get(hdr.IfModifiedSince); ims != "" {
			if t, err := hdr.ParseTime(ims); err == nil {
				if !v.ModTime.Truncate(time.Second).After(t) {
					return FailNegative
				}
			}
		}
	}

	if hasRange {
		if ir := h.Get(hdr.IfRange); ir != "" {
			if !ifRangeMatches(ir, v) {
				return RangeIgnore
			}
		}
	}

	return Pass
}

func hasStar(vals []string) bool {
	for _, v := range vals {
		if v == "*" {
			return true
		}
	}
	return false
}

// matchesAny checks an etag list against the resource's current ETag.
// strong requires strong comparison (no "W/" prefix on either side);
// If-None-Match uses weak comparison per RFC 7232 §3.2.
func matchesAny(vals []string, etag string, strong bool) bool {
	if etag == "" {
		return false
	}
	for _, v := range vals {
		if v == "*" {
			return true
		}
		if strong {
			if v == etag && !strings.HasPrefix(v, "W/") {
				return true
			}
		} else if weakEqual(v, etag) {
			return true
		}
	}
	return false
}

func weakEqual(a, b string) bool {
	return strings.TrimPrefix(a, "W/") == strings.TrimPrefix(b, "W/")
}

func ifRangeMatches(headerVal string, v Validators) bool {
	if strings.HasPrefix(headerVal, `"`) || strings.HasPrefix(headerVal, "W/\"") {
		return headerVal == v.ETag
	}
	if t, err := hdr.ParseTime(headerVal); err == nil {
		return v.ModTime.Truncate(time.Second).Equal(t)
	}
	return false
}
