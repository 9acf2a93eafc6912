package respgen

import (
	"hash/fnv"
	"time"

	"github.com/lucentsrv/lucent/hdr"
)

// computeETag builds a strong quoted entity-tag from the formatted
// Last-Modified string: the FNV-1a digest of the string concatenated
// with the digest of its reversal. FNV's offset basis is a fixed seed,
// so restarts reproduce the same tag for the same Last-Modified and
// client caches stay valid across them.
func computeETag(modTime string) string {
	h1 := fnv.New64a()
	h1.Write([]byte(modTime))

	h2 := fnv.New64a()
	h2.Write([]byte(reverse(modTime)))

	return `"` + hexOf(h1.Sum64()) + hexOf(h2.Sum64()) + `"`
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

const hexDigits = "0123456789abcdef"

func hexOf(v uint64) string {
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

// formatModTime truncates t to whole seconds and renders it as
// IMF-fixdate, the Last-Modified wire format.
func formatModTime(t time.Time) string {
	return t.Truncate(time.Second).UTC().Format(hdr.TimeFormat)
}
