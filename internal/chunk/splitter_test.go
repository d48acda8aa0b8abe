package chunk

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	s := NewSplitter(100, 20)

	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		if got := s.Split(input); len(got) != 0 {
			t.Errorf("Split(%q) = %v, expected no chunks", input, got)
		}
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)

	got := s.Split("a short paragraph that fits.")
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(got), got)
	}
	if got[0] != "a short paragraph that fits." {
		t.Errorf("unexpected chunk: %q", got[0])
	}
}

func TestSplit_WordBoundaries(t *testing.T) {
	s := NewSplitter(4, 0)

	got := s.Split("a b c d e")
	want := []string{"a b", "c d", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_OverlapCarriesTail(t *testing.T) {
	s := NewSplitter(4, 2)

	got := s.Split("a b c d e")
	want := []string{"a b", "b c", "c d", "d e"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_PrefersParagraphBreaks(t *testing.T) {
	s := NewSplitter(25, 0)

	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird one."
	got := s.Split(text)

	for _, c := range got {
		if strings.Contains(c, "\n\n") {
			t.Errorf("chunk spans a paragraph break: %q", c)
		}
	}
	if len(got) != 3 {
		t.Errorf("expected 3 paragraph chunks, got %d: %v", len(got), got)
	}
}

func TestSplit_NoChunkExceedsBudget(t *testing.T) {
	s := NewSplitter(50, 10)

	long := strings.Repeat("some words in a sentence. ", 40) +
		"averyverylongunbrokenrunofcharacterswithnoseparatorsatallinit" +
		strings.Repeat("x", 200)
	for i, c := range s.Split(long) {
		if len(c) > 50+10 {
			t.Errorf("chunk[%d] length %d exceeds size+overlap: %q", i, len(c), c)
		}
	}
}

func TestSplit_HardCutFallback(t *testing.T) {
	s := NewSplitter(10, 0)

	got := s.Split(strings.Repeat("x", 25))
	if len(got) != 3 {
		t.Fatalf("expected 3 hard-cut chunks, got %d", len(got))
	}
	for i, c := range got[:2] {
		if len(c) != 10 {
			t.Errorf("chunk[%d] length = %d, want 10", i, len(c))
		}
	}
	if len(got[2]) != 5 {
		t.Errorf("last chunk length = %d, want 5", len(got[2]))
	}
}

func TestSplit_CoversAllContent(t *testing.T) {
	s := NewSplitter(30, 5)

	text := "alpha beta gamma. delta epsilon zeta.\n\neta theta iota kappa."
	joined := strings.Join(s.Split(text), " ")
	for _, word := range strings.Fields(strings.ReplaceAll(text, "\n", " ")) {
		if !strings.Contains(joined, strings.TrimSuffix(word, ".")) {
			t.Errorf("word %q missing from chunks", word)
		}
	}
}
