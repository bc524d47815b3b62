package agent

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// segment is one piece of text produced by thinkMarkerDetector.Feed,
// tagged as thinking or regular content.
type segment struct {
	text     string
	thinking bool
}

// thinkMarkerDetector splits an incremental token stream around inline
// <think>...</think> markers, per §4.6's token-streamed mode: content
// models that don't expose a structured thinking channel but do expose
// <think> tags inline in their text stream still get a clean thinking/
// content split, sharing one id for the whole block.
//
// Feed is tolerant of the marker tags arriving split across chunk
// boundaries by buffering a short tail whenever the buffered suffix
// could be a partial match for either tag.
type thinkMarkerDetector struct {
	id        string
	inThink   bool
	buf       string
}

func newThinkMarkerDetector() *thinkMarkerDetector {
	return &thinkMarkerDetector{id: newID()}
}

// Feed processes the next chunk of raw model text and returns zero or
// more ready-to-emit segments.
func (d *thinkMarkerDetector) Feed(chunk string) []segment {
	d.buf += chunk
	var out []segment

	for {
		tag := thinkCloseTag
		if !d.inThink {
			tag = thinkOpenTag
		}

		idx := strings.Index(d.buf, tag)
		if idx == -1 {
			// No complete tag yet. Hold back a tail that could be the
			// start of one so it isn't emitted as plain content.
			holdback := longestTagPrefixSuffix(d.buf, tag)
			ready := d.buf[:len(d.buf)-holdback]
			if ready != "" {
				out = append(out, segment{text: ready, thinking: d.inThink})
			}
			d.buf = d.buf[len(d.buf)-holdback:]
			return out
		}

		if idx > 0 {
			out = append(out, segment{text: d.buf[:idx], thinking: d.inThink})
		}
		d.buf = d.buf[idx+len(tag):]
		d.inThink = !d.inThink
	}
}

// longestTagPrefixSuffix returns the length of the longest suffix of s
// that is also a non-empty prefix of tag, so a tag split across two Feed
// calls is never emitted as plain content.
func longestTagPrefixSuffix(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
