// Package parse turns raw diagnostic-tool output into structured result
// fragments. Every parser here is a pure function of (prior state, new
// chunk, isFinal) -> (new state, textual rendering): safe to call on
// arbitrary chunk boundaries, idempotent when isFinal is repeated, and
// tolerant of lines it doesn't recognize (section 4.4).
package parse

import "strings"

// LineBuffer accumulates chunks and yields only complete lines, holding a
// trailing partial line until the next chunk (or final flush) completes it.
type LineBuffer struct {
	pending string
	done    bool
}

// Feed appends chunk and returns the complete lines it produced. When
// isFinal is true, any trailing partial line is also returned and the
// buffer is marked done; further calls are no-ops so repeated final
// flushes stay idempotent.
func (b *LineBuffer) Feed(chunk string, isFinal bool) []string {
	if b.done {
		return nil
	}
	b.pending += chunk

	var lines []string
	for {
		idx := strings.IndexByte(b.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(b.pending[:idx], "\r")
		lines = append(lines, line)
		b.pending = b.pending[idx+1:]
	}

	if isFinal {
		if b.pending != "" {
			lines = append(lines, strings.TrimSuffix(b.pending, "\r"))
			b.pending = ""
		}
		b.done = true
	}
	return lines
}
