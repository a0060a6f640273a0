package llm

import "strings"

// WordChunker re-chunks arbitrary text deltas at word boundaries so clients
// render smoothly regardless of how the provider slices its output. A word is
// emitted together with its trailing whitespace.
type WordChunker struct {
	buf  strings.Builder
	emit func(string)
}

// NewWordChunker creates a chunker that calls emit for each complete word.
func NewWordChunker(emit func(string)) *WordChunker {
	return &WordChunker{emit: emit}
}

// Write feeds a delta into the chunker, emitting any completed words.
func (w *WordChunker) Write(delta string) {
	if delta == "" {
		return
	}
	w.buf.WriteString(delta)

	s := w.buf.String()
	// Everything up to the last whitespace run is emittable; the tail may
	// still be a word in progress.
	cut := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' || s[i] == '\n' || s[i] == '\t' {
			cut = i
			break
		}
	}
	if cut < 0 {
		return
	}

	head, tail := s[:cut+1], s[cut+1:]
	w.buf.Reset()
	w.buf.WriteString(tail)

	for _, word := range splitKeepingSpace(head) {
		w.emit(word)
	}
}

// Flush emits any buffered tail.
func (w *WordChunker) Flush() {
	if w.buf.Len() == 0 {
		return
	}
	w.emit(w.buf.String())
	w.buf.Reset()
}

// splitKeepingSpace splits s after each whitespace run.
func splitKeepingSpace(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i := 0; i < len(s); i++ {
		isSpace := s[i] == ' ' || s[i] == '\n' || s[i] == '\t'
		if inSpace && !isSpace {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
