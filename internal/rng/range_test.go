/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package rng

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	const size = 1000

	tests := []struct {
		name   string
		header string
		want   []Range
		errIs  error
	}{
		{"simple", "bytes=0-499", []Range{{0, 500}}, nil},
		{"suffix", "bytes=-500", []Range{{500, 500}}, nil},
		{"openEnded", "bytes=500-", []Range{{500, 500}}, nil},
		{"clampedEnd", "bytes=900-1500", []Range{{900, 100}}, nil},
		{"multiple", "bytes=0-99,200-299", []Range{{0, 100}, {200, 100}}, nil},
		{"oneOutOfBoundsDropped", "bytes=0-99,2000-3000", []Range{{0, 100}}, nil},
		{"allOutOfBounds", "bytes=2000-3000", nil, ErrNoOverlap},
		{"startPastEnd", "bytes=500-100", nil, ErrNoOverlap},
		{"garbageNotRange", "not-bytes=0-1", nil, ErrNoOverlap},
		{"suffixZero", "bytes=-0", nil, ErrNoOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.header, size, 0)
			if tt.errIs != nil {
				require.ErrorIs(t, err, tt.errIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTooManyRanges(t *testing.T) {
	var specs []string
	for i := 0; i < MaxRanges+1; i++ {
		specs = append(specs, "0-1")
	}
	_, err := Parse("bytes="+strings.Join(specs, ","), 1000, 0)
	require.ErrorIs(t, err, ErrTooManyRanges)
}

func TestParseHonorsConfiguredMaxRanges(t *testing.T) {
	_, err := Parse("bytes=0-1,2-3,4-5", 1000, 2)
	require.ErrorIs(t, err, ErrTooManyRanges)

	got, err := Parse("bytes=0-1,2-3", 1000, 2)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 2}, {2, 2}}, got)
}

func TestApplySingleRange(t *testing.T) {
	content := strings.Repeat("a", 500) + strings.Repeat("b", 500)
	src := strings.NewReader(content)

	ranges, err := Parse("bytes=500-999", int64(len(content)), 0)
	require.NoError(t, err)

	result, err := Apply(ranges, "text/plain", int64(len(content)), src)
	require.NoError(t, err)

	assert.Equal(t, 206, result.Status)
	assert.Equal(t, "bytes 500-999/1000", result.Header.Get("Content-Range"))
	assert.Equal(t, int64(500), result.Length)

	var buf bytes.Buffer
	require.NoError(t, result.Write(&buf))
	assert.Equal(t, strings.Repeat("b", 500), buf.String())
}

func TestApplyMultipartRange(t *testing.T) {
	content := "0123456789"
	src := strings.NewReader(content)

	ranges, err := Parse("bytes=0-2,5-7", int64(len(content)), 0)
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	result, err := Apply(ranges, "text/plain", int64(len(content)), src)
	require.NoError(t, err)
	assert.Equal(t, 206, result.Status)
	assert.Contains(t, result.Header.Get("Content-Type"), "multipart/byteranges; boundary=")

	var buf bytes.Buffer
	require.NoError(t, result.Write(&buf))
	out := buf.String()
	assert.Contains(t, out, "Content-Range: bytes 0-2/10")
	assert.Contains(t, out, "Content-Range: bytes 5-7/10")
	assert.Contains(t, out, "012")
	assert.Contains(t, out, "567")
	assert.Equal(t, int64(buf.Len()), result.Length)
}

func TestUnsatisfiable(t *testing.T) {
	h := Unsatisfiable(1234)
	assert.Equal(t, "bytes */1234", h.Get("Content-Range"))
}
