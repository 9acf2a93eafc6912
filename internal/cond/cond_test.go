/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package cond

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lucentsrv/lucent/hdr"
)

var (
	modTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	etag    = `"aabbccdd"`
)

func validators() Validators {
	return Validators{ETag: etag, ModTime: modTime}
}

func httpDate(t time.Time) string {
	return t.UTC().Format(hdr.TimeFormat)
}

func TestEvaluateNoConditionals(t *testing.T) {
	assert.Equal(t, Pass, Evaluate(hdr.Header{}, validators(), true, "GET", false))
}

func TestEvaluateIfMatch(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Result
	}{
		{"star", "*", Pass},
		{"matching", etag, Pass},
		{"nonMatching", `"other"`, FailPositive},
		{"listWithMatch", `"other", ` + etag, Pass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hdr.Header{hdr.IfMatch: {tt.value}}
			assert.Equal(t, tt.want, Evaluate(h, validators(), true, "GET", false))
		})
	}
}

func TestEvaluateIfUnmodifiedSince(t *testing.T) {
	h := hdr.Header{hdr.IfUnmodifiedSince: {httpDate(modTime.Add(-time.Hour))}}
	assert.Equal(t, FailPositive, Evaluate(h, validators(), true, "GET", false))

	h = hdr.Header{hdr.IfUnmodifiedSince: {httpDate(modTime)}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", false))

	// Unparseable date is treated as if the header were absent.
	h = hdr.Header{hdr.IfUnmodifiedSince: {"yesterday-ish"}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", false))
}

func TestEvaluateIfUnmodifiedSinceSkippedWhenIfMatchPresent(t *testing.T) {
	h := hdr.Header{
		hdr.IfMatch:           {etag},
		hdr.IfUnmodifiedSince: {httpDate(modTime.Add(-time.Hour))},
	}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", false))
}

func TestEvaluateIfNoneMatch(t *testing.T) {
	h := hdr.Header{hdr.IfNoneMatch: {etag}}
	assert.Equal(t, FailNegative, Evaluate(h, validators(), true, "GET", false))
	assert.Equal(t, FailNegative, Evaluate(h, validators(), true, "HEAD", false))
	assert.Equal(t, FailPositive, Evaluate(h, validators(), true, "POST", false))

	h = hdr.Header{hdr.IfNoneMatch: {`"other"`}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", false))
}

func TestEvaluateIfNoneMatchStar(t *testing.T) {
	h := hdr.Header{hdr.IfNoneMatch: {"*"}}
	assert.Equal(t, FailNegative, Evaluate(h, validators(), true, "GET", false))
}

func TestEvaluateIfNoneMatchWeakComparison(t *testing.T) {
	h := hdr.Header{hdr.IfNoneMatch: {"W/" + etag}}
	assert.Equal(t, FailNegative, Evaluate(h, validators(), true, "GET", false))
}

func TestEvaluateIfModifiedSince(t *testing.T) {
	h := hdr.Header{hdr.IfModifiedSince: {httpDate(modTime)}}
	assert.Equal(t, FailNegative, Evaluate(h, validators(), true, "GET", false))

	h = hdr.Header{hdr.IfModifiedSince: {httpDate(modTime.Add(-time.Hour))}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", false))

	// Non-GET/HEAD methods never see If-Modified-Since.
	h = hdr.Header{hdr.IfModifiedSince: {httpDate(modTime)}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "POST", false))
}

func TestEvaluateIfNoneMatchTakesPrecedenceOverIfModifiedSince(t *testing.T) {
	h := hdr.Header{
		hdr.IfNoneMatch:     {`"other"`},
		hdr.IfModifiedSince: {httpDate(modTime)},
	}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", false))
}

func TestEvaluateIfRange(t *testing.T) {
	h := hdr.Header{hdr.IfRange: {etag}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", true))

	h = hdr.Header{hdr.IfRange: {`"other"`}}
	assert.Equal(t, RangeIgnore, Evaluate(h, validators(), true, "GET", true))

	h = hdr.Header{hdr.IfRange: {httpDate(modTime)}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", true))

	h = hdr.Header{hdr.IfRange: {httpDate(modTime.Add(-time.Hour))}}
	assert.Equal(t, RangeIgnore, Evaluate(h, validators(), true, "GET", true))
}

func TestEvaluateIfRangeIgnoredWithoutRange(t *testing.T) {
	h := hdr.Header{hdr.IfRange: {`"other"`}}
	assert.Equal(t, Pass, Evaluate(h, validators(), true, "GET", false))
}
