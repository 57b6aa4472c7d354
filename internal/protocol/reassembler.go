// Package protocol turns raw bytes from the device link into classified
// events: complete lines, temperature/position/status reports, alarms,
// acknowledgements and action comments.
package protocol

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Reassembler converts a stream of byte deliveries into complete
// lines. At most one partial line is retained between calls.
type Reassembler struct {
	fragment string
}

// Feed decodes buf as UTF-8 (tolerating invalid sequences by
// substituting an escaped representation) and returns every complete
// line observed, in order. A trailing partial line is retained for
// the next call. Empty lines are dropped.
func (r *Reassembler) Feed(buf []byte) []string {
	decoded := decodeLenient(buf)

	combined := r.fragment + decoded
	r.fragment = ""

	var lines []string
	for {
		idx := strings.IndexAny(combined, "\r\n")
		if idx < 0 {
			r.fragment = combined
			break
		}
		line := combined[:idx]
		// Consume \r\n, \n or \r as a single terminator.
		rest := combined[idx+1:]
		if combined[idx] == '\r' && strings.HasPrefix(rest, "\n") {
			rest = rest[1:]
		}
		combined = rest
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// decodeLenient decodes buf as UTF-8, replacing any invalid byte
// sequence with its escaped hex representation so the reassembler
// never panics and parsing downstream never sees invalid runes.
func decodeLenient(buf []byte) string {
	if utf8.Valid(buf) {
		return string(buf)
	}

	var b strings.Builder
	b.Grow(len(buf))
	for i := 0; i < len(buf); {
		r, size := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteString("\\x" + strconv.FormatInt(int64(buf[i]), 16))
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}
