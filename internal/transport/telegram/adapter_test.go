package telegram

import (
	"strings"
	"testing"
)

func TestSplitTextShortPassthrough(t *testing.T) {
	t.Parallel()
	chunks := splitText("hello", 100)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("line one\n", 10)
	chunks := splitText(text, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d does not end at a newline: %q", i, c)
		}
	}
	if got := strings.Join(chunks, ""); got != text {
		t.Fatal("chunks do not reassemble the original text")
	}
}

func TestSplitTextHardSplitWithoutNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 95)
	chunks := splitText(text, 40)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 40 {
			t.Fatalf("chunk %d over limit: %d runes", i, len([]rune(c)))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("chunks do not reassemble the original text")
	}
}

func TestSplitTextMultibyteSafe(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("🍉", 30)
	chunks := splitText(text, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if strings.Count(c, "🍉") != 10 {
			t.Fatalf("chunk %d split inside a rune: %q", i, c)
		}
	}
}
