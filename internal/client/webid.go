package client

import (
	"math/rand"
	"strconv"
	"strings"
)

// webIDTemplate mirrors the UUID-shaped seed the platform's own web bundle
// expands; digits 0, 1 and 8 are replaced through the xor transform below.
const webIDTemplate = "10000000-1000-4000-8000-100000000000"

// NewWebID generates the per-process random web id carried in the
// fingerprint block: a 19-digit decimal string.
func NewWebID() string {
	var b strings.Builder
	b.Grow(len(webIDTemplate))
	for _, ch := range webIDTemplate {
		switch ch {
		case '0', '1', '8':
			t := int(ch - '0')
			b.WriteString(strconv.Itoa(t ^ (rand.Intn(16) >> (t / 4))))
		default:
			b.WriteRune(ch)
		}
	}
	return strings.ReplaceAll(b.String(), "-", "")[:19]
}
