// Package ids generates collision-resistant local identifiers.
//
// An id combines a prefix, a base36 millisecond timestamp and a random
// suffix, e.g. "find_m1x2abc_k9f3q7tz". No global counter is kept;
// collision avoidance relies on the combined entropy of time and
// randomness, which is sufficient for one installed copy of the app.
package ids

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

const randomChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// New returns a fresh identifier with the given prefix.
// An empty prefix yields "rec".
func New(prefix string) string {
	if prefix == "" {
		prefix = "rec"
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return prefix + "_" + ts + "_" + randomSuffix(8)
}

// randomSuffix returns n characters drawn from crypto/rand.
func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// nanosecond jitter rather than panicking in the capture path.
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	var b strings.Builder
	b.Grow(n)
	for _, c := range buf {
		b.WriteByte(randomChars[int(c)%len(randomChars)])
	}
	return b.String()
}
