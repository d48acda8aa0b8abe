// Package chunk splits cleaned document text into overlapping passages.
// Splitting prefers natural boundaries (blank line, newline, sentence
// punctuation, space) and falls back to a hard character cut only when no
// separator fits inside the window.
package chunk

import "strings"

// separators in preference order. The empty fallback is implicit: a span
// with none of these is cut at the character level.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
)

// Splitter produces chunks of at most chunkSize characters plus up to
// overlap characters carried over from the previous chunk.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Non-positive size or overlap fall back to
// defaults; overlap is clamped below the chunk size.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split chunks text. Empty or whitespace-only input yields no chunks and
// no error.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	chunks := s.split(text, separators)

	out := chunks[:0]
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := ""
	rest := []string{}
	for i, candidate := range seps {
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = s.hardCut(text)
	} else {
		pieces = splitKeep(text, sep)
	}

	var final []string
	var good []string
	for _, p := range pieces {
		if len(p) <= s.chunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, s.hardCut(p)...)
		} else {
			final = append(final, s.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge greedily joins small pieces into chunks, retaining a tail of up to
// overlap characters between consecutive chunks.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, p := range pieces {
		if total+len(p) > s.chunkSize && total > 0 {
			chunks = append(chunks, strings.Join(current, ""))
			for total > s.overlap || (total+len(p) > s.chunkSize && total > 0) {
				total -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += len(p)
	}
	if total > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}
	return chunks
}

// hardCut slices text into chunkSize-byte windows on rune boundaries.
func (s *Splitter) hardCut(text string) []string {
	var out []string
	start := 0
	width := 0
	for i, r := range text {
		rl := len(string(r))
		if width+rl > s.chunkSize {
			out = append(out, text[start:i])
			start = i
			width = 0
		}
		width += rl
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// splitKeep splits text on sep, keeping the separator attached to the
// preceding piece so joins reconstruct the original text.
func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
