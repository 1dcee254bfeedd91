package gateway

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/laoshi-bot/laoshi/internal/session"
)

// thread adapts one Discord thread to session.Conversation.
type thread struct {
	gateway *Gateway
	id      string
}

// Send delivers text to the thread, hard-splitting anything over the
// Discord message limit.
func (t *thread) Send(ctx context.Context, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLen) {
		if _, err := t.gateway.ds.ChannelMessageSend(t.id, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// NewStatus posts the initial status message. The reporter edits it in
// place for the rest of the session.
func (t *thread) NewStatus(ctx context.Context) (session.StatusSink, error) {
	msg, err := t.gateway.ds.ChannelMessageSend(t.id, startingText, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &statusMessage{gateway: t.gateway, channelID: t.id, messageID: msg.ID}, nil
}

// Typing shows the typing indicator. Best effort.
func (t *thread) Typing(ctx context.Context) {
	if err := t.gateway.ds.ChannelTyping(t.id, discordgo.WithContext(ctx)); err != nil {
		t.gateway.logger.Debug("sending typing indicator", "thread", t.id, "error", err)
	}
}

// statusMessage is a session.StatusSink backed by in-place edits of one
// Discord message.
type statusMessage struct {
	gateway   *Gateway
	channelID string
	messageID string
}

func (s *statusMessage) Update(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	_, err := s.gateway.ds.ChannelMessageEdit(s.channelID, s.messageID, text, discordgo.WithContext(ctx))
	return err
}
