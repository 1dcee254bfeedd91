package gateway

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestStripMention(t *testing.T) {
	tests := []struct {
		name    string
		content string
		botID   string
		want    string
	}{
		{"plain", "hello", "99", "hello"},
		{"leading mention", "<@99> hello", "99", "hello"},
		{"nickname mention", "<@!99> hello", "99", "hello"},
		{"mention only", "<@99>", "99", ""},
		{"other user mention kept", "<@42> hi", "99", "<@42> hi"},
		{"no bot id", "  hi  ", "", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMention(tt.content, tt.botID); got != tt.want {
				t.Errorf("StripMention(%q, %q) = %q, want %q", tt.content, tt.botID, got, tt.want)
			}
		})
	}
}

func TestThreadTitle(t *testing.T) {
	short := "how do i say see you again?"
	if got := ThreadTitle(short); got != short {
		t.Errorf("short title changed: %q", got)
	}

	long := strings.Repeat("x", 150)
	got := ThreadTitle(long)
	if utf8.RuneCountInString(got) != 100 {
		t.Errorf("long title has %d runes, want 100", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long title missing ellipsis: %q", got)
	}

	// Rune-aware truncation must not split multi-byte characters.
	chinese := strings.Repeat("学", 150)
	got = ThreadTitle(chinese)
	if !utf8.ValidString(got) {
		t.Error("title contains an invalid UTF-8 sequence")
	}
	if utf8.RuneCountInString(got) != 100 {
		t.Errorf("chinese title has %d runes, want 100", utf8.RuneCountInString(got))
	}
}

func TestSplitMessage_ShortPassthrough(t *testing.T) {
	chunks := SplitMessage("hello", 2000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("SplitMessage = %q", chunks)
	}
}

func TestSplitMessage_Empty(t *testing.T) {
	if chunks := SplitMessage("", 2000); chunks != nil {
		t.Errorf("expected nil for empty text, got %q", chunks)
	}
	if chunks := SplitMessage("   \n ", 2000); chunks != nil {
		t.Errorf("expected nil for whitespace text, got %q", chunks)
	}
}

func TestSplitMessage_PrefersParagraphBreaks(t *testing.T) {
	a := strings.Repeat("a", 30)
	b := strings.Repeat("b", 30)
	chunks := SplitMessage(a+"\n\n"+b, 40)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != a || chunks[1] != b {
		t.Errorf("split did not land on the paragraph break: %q", chunks)
	}
}

func TestSplitMessage_FallsBackToWords(t *testing.T) {
	text := strings.Repeat("word ", 20) // 100 bytes
	chunks := SplitMessage(text, 30)
	for i, c := range chunks {
		if len(c) > 30 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
		if strings.Contains(c, "  ") {
			t.Errorf("chunk %d has collapsed spacing artifacts: %q", i, c)
		}
	}
	if got := strings.Join(chunks, " "); got != strings.TrimSpace(text) {
		t.Errorf("reassembled text mismatch:\n%q\n%q", got, strings.TrimSpace(text))
	}
}

func TestSplitMessage_HardCutRespectsRunes(t *testing.T) {
	text := strings.Repeat("学", 100) // 300 bytes, no natural boundary
	chunks := SplitMessage(text, 50)
	var total int
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d split inside a rune: %q", i, c)
		}
		total += utf8.RuneCountInString(c)
	}
	if total != 100 {
		t.Errorf("lost characters during split: %d of 100", total)
	}
}

func TestSplitMessage_EveryChunkWithinLimit(t *testing.T) {
	text := strings.Repeat("sentence one. sentence two.\n", 300)
	for _, c := range SplitMessage(text, MaxMessageLen) {
		if len(c) > MaxMessageLen {
			t.Errorf("chunk of %d bytes exceeds MaxMessageLen", len(c))
		}
		if strings.TrimSpace(c) == "" {
			t.Error("emitted an empty chunk")
		}
	}
}
