package reqparse

import (
	"strings"
)

// cleanPath percent-decodes and lexically normalizes an origin-form
// request-target's path component, resolving "." and ".." segments purely
// by string manipulation, before any filesystem access. Escape rejection
// never relies on the OS.
//
// It returns the cleaned, always-slash-rooted path and whether the input
// tried to climb above the root (escaped); escaped paths must be rejected
// with 404 by the caller without ever being joined to file_root.
func cleanPath(raw string) (clean string, escaped bool, malformed bool) {
	decoded, ok := percentDecode(raw)
	if !ok {
		return "", false, true
	}
	if decoded == "" || decoded[0] != '/' {
		decoded = "/" + decoded
	}

	segments := strings.Split(decoded, "/")
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			// skip
		case "..":
			if len(stack) == 0 {
				return "", true, false
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}

	clean = "/" + strings.Join(stack, "/")
	if strings.HasSuffix(decoded, "/") && clean != "/" {
		clean += "/"
	}
	return clean, false, false
}

// percentDecode decodes %XX escapes. Invalid escapes are a malformed
// request, not a silent pass-through.
func percentDecode(s string) (string, bool) {
	hasPercent := strings.IndexByte(s, '%') >= 0
	if !hasPercent {
		return s, true
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", false
		}
		hi, ok1 := hexVal(s[i+1])
		lo, ok2 := hexVal(s[i+2])
		if !ok1 || !ok2 {
			return "", false
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), true
}

func hexVal(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
