// Package basicauth implements the RFC 2617 Basic-authentication
// checker: longest-path-prefix rule lookup, Authorization header
// decoding, and constant-time credential verification.
package basicauth

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/lucentsrv/lucent/hdr"
)

// Rule is one configured path-prefix protection: any request whose
// routed path has Prefix as a path prefix must present credentials
// matching one of Users.
type Rule struct {
	Prefix string
	Realm  string
	Users  map[string]string // username -> bcrypt hash
}

// Verifier checks a plaintext password against a stored hash. The
// default implementation is bcrypt; it is an interface so tests (and
// alternate configured hash algorithms) can swap it out.
type Verifier interface {
	Verify(hash, password string) bool
}

// BcryptVerifier is the default Verifier, backed by
// golang.org/x/crypto/bcrypt.
type BcryptVerifier struct{}

// Verify reports whether password hashes to hash under bcrypt.
func (BcryptVerifier) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Match finds the longest-prefix rule in rules covering routedPath. It
// returns false if no rule covers the path.
func Match(rules []Rule, routedPath string) (Rule, bool) {
	var (
		best    Rule
		bestLen = -1
		found   bool
	)
	for _, r := range rules {
		if !strings.HasPrefix(routedPath, r.Prefix) {
			continue
		}
		if len(r.Prefix) > bestLen {
			best, bestLen, found = r, len(r.Prefix), true
		}
	}
	return best, found
}

// Check verifies the request's Authorization header against rule using
// verifier. It returns true on success. Username lookup uses a
// constant-time comparison against every configured user so that the
// response latency does not leak which usernames exist.
func Check(h hdr.Header, rule Rule, verifier Verifier) bool {
	username, password, ok := parseBasicAuth(h.Get(hdr.Authorization))
	if !ok {
		return false
	}

	var storedHash string
	matched := false
	for user, hash := range rule.Users {
		if subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1 {
			storedHash = hash
			matched = true
		}
	}
	if !matched {
		return false
	}
	return verifier.Verify(storedHash, password)
}

// Challenge builds the WWW-Authenticate header value for a failed or
// missing auth attempt.
func Challenge(realm string) string {
	return `Basic realm="` + realm + `", charset="UTF-8"`
}

// parseBasicAuth decodes an "Authorization: Basic <base64>" header value
// into a username and password, splitting once on the first colon.
func parseBasicAuth(auth string) (username, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(auth, prefix) {
		return "", "", false
	}
	c, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	cs := string(c)
	i := strings.IndexByte(cs, ':')
	if i < 0 {
		return "", "", false
	}
	return cs[:i], cs[i+1:], true
}
