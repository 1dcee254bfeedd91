package agent

import (
	"context"
	"strings"
)

// flushThreshold is the buffered-text size beyond which a completed
// increment is forwarded. Kept under the gateway's message size limit so
// each increment usually maps to one chat message.
const flushThreshold = 1500

// streamBuffer accumulates streamed model text and forwards it in
// paragraph-aligned increments, so the conversation receives readable
// blocks rather than token fragments.
type streamBuffer struct {
	send    func(context.Context, string) error
	pending string
	total   int
}

// add appends streamed text and flushes any complete increments.
func (b *streamBuffer) add(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	b.pending += text
	b.total += len(text)

	for len(b.pending) >= flushThreshold {
		cut := strings.LastIndex(b.pending, "\n\n")
		if cut <= 0 {
			// No paragraph boundary yet; wait for more text rather than
			// splitting mid-sentence. The gateway hard-splits oversized
			// messages as a backstop.
			return nil
		}
		chunk := b.pending[:cut]
		b.pending = strings.TrimLeft(b.pending[cut:], "\n")
		if err := b.send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// close flushes whatever remains.
func (b *streamBuffer) close(ctx context.Context) error {
	if strings.TrimSpace(b.pending) == "" {
		b.pending = ""
		return nil
	}
	chunk := b.pending
	b.pending = ""
	return b.send(ctx, chunk)
}

// unused reports whether no text was ever streamed into the buffer.
func (b *streamBuffer) unused() bool {
	return b.total == 0
}
