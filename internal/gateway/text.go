package gateway

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is Discord's message length limit. Measured here in
// bytes, which is stricter than Discord's character count and therefore
// always safe.
const MaxMessageLen = 2000

// maxTitleRunes caps a created thread's title.
const maxTitleRunes = 100

// StripMention removes the bot's own mention tokens from message content
// and trims surrounding whitespace.
func StripMention(content, botID string) string {
	if botID != "" {
		content = strings.ReplaceAll(content, "<@"+botID+">", "")
		content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	}
	return strings.TrimSpace(content)
}

// ThreadTitle derives a thread title from the opening message: the whole
// message when short, otherwise the first 97 runes with an ellipsis.
func ThreadTitle(content string) string {
	runes := []rune(content)
	if len(runes) < maxTitleRunes {
		return content
	}
	return string(runes[:maxTitleRunes-3]) + "..."
}

// SplitMessage splits text into chunks of at most limit bytes, breaking
// preferentially at paragraph, line, and word boundaries, and never
// inside a UTF-8 sequence.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}

	var chunks []string
	for text != "" {
		if len(text) <= limit {
			if t := strings.TrimSpace(text); t != "" {
				chunks = append(chunks, t)
			}
			break
		}
		cut := splitPoint(text, limit)
		if chunk := strings.TrimSpace(text[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimLeft(text[cut:], " \n")
	}
	return chunks
}

// splitPoint picks where to cut the next chunk: the last paragraph
// break, line break, or space within the limit, falling back to a hard
// cut at a rune boundary.
func splitPoint(text string, limit int) int {
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	window := text[:limit]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > 0 {
			return i
		}
	}
	if limit == 0 {
		// A single rune wider than the limit cannot happen with sane
		// limits; advance by one rune to guarantee progress.
		_, size := utf8.DecodeRuneInString(text)
		return size
	}
	return limit
}
