// Package attach classifies inbound message attachments. Attachments
// whose declared media type is in the inline allow-set are fetched and
// turned into binary content parts for the agent; everything else is
// ignored and reported back to the user by name.
package attach

import (
	"context"

	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
)

// inlineMediaTypes is the allow-set of media types the agent can consume
// directly: common image and audio formats plus PDF.
var inlineMediaTypes = map[string]struct{}{
	"image/avif":    {},
	"image/bmp":     {},
	"image/gif":     {},
	"image/jpeg":    {},
	"image/png":     {},
	"image/svg+xml": {},
	"image/webp":    {},

	"audio/aac":  {},
	"audio/mpeg": {},
	"audio/wav":  {},
	"audio/webm": {},

	"application/pdf": {},
}

// Inlineable reports whether the media type is in the allow-set.
func Inlineable(mediaType string) bool {
	_, ok := inlineMediaTypes[mediaType]
	return ok
}

// Descriptor describes one inbound attachment: its name, declared media
// type, and a byte-fetch capability.
type Descriptor struct {
	Name      string
	MediaType string
	Fetch     func(ctx context.Context) ([]byte, error)
}

// Classify partitions attachments into inline content parts (fetched) and
// ignored entries carrying the refusal reason. A fetch failure demotes
// the attachment to ignored; it is never fatal to the turn.
// Classification is deterministic given the same inputs and successful
// fetches: input order is preserved in both partitions.
func Classify(ctx context.Context, logger log.Logger, attachments []Descriptor) (inline []session.Part, ignored []session.IgnoredAttachment) {
	for _, att := range attachments {
		if !Inlineable(att.MediaType) {
			ignored = append(ignored, session.IgnoredAttachment{Name: att.Name, Reason: session.IgnoredInvalidType})
			continue
		}
		data, err := att.Fetch(ctx)
		if err != nil {
			logger.Warn("fetching attachment, demoting to ignored",
				"name", att.Name,
				"mediaType", att.MediaType,
				"error", err,
			)
			ignored = append(ignored, session.IgnoredAttachment{Name: att.Name, Reason: session.IgnoredFetchFailed})
			continue
		}
		inline = append(inline, session.Part{
			Data:      data,
			MediaType: att.MediaType,
		})
	}
	return inline, ignored
}
