package llm

import (
	"reflect"
	"testing"
)

func collectChunks(t *testing.T, deltas []string) []string {
	t.Helper()
	var out []string
	c := NewWordChunker(func(word string) { out = append(out, word) })
	for _, d := range deltas {
		c.Write(d)
	}
	c.Flush()
	return out
}

func TestChunkerWordBoundaries(t *testing.T) {
	got := collectChunks(t, []string{"hel", "lo wor", "ld ho", "w"})
	want := []string{"hello ", "world ", "how"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestChunkerSingleDelta(t *testing.T) {
	got := collectChunks(t, []string{"one two three"})
	want := []string{"one ", "two ", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestChunkerKeepsWhitespaceRuns(t *testing.T) {
	got := collectChunks(t, []string{"a\n\nb ", "c"})
	want := []string{"a\n\n", "b ", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	got := collectChunks(t, []string{"", ""})
	if len(got) != 0 {
		t.Fatalf("expected no chunks, got %q", got)
	}
}

func TestChunkerFlushWithoutBoundary(t *testing.T) {
	var out []string
	c := NewWordChunker(func(word string) { out = append(out, word) })
	c.Write("incomplete")
	if len(out) != 0 {
		t.Fatalf("expected no emission before boundary, got %q", out)
	}
	c.Flush()
	if !reflect.DeepEqual(out, []string{"incomplete"}) {
		t.Fatalf("expected flushed tail, got %q", out)
	}
}
