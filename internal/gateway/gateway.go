// Package gateway connects the session controller to Discord. It routes
// inbound messages to conversations (creating threads and ownership
// records for messages in the entry channel), builds turns via the
// attachment classifier, and adapts Discord messages to the controller's
// Conversation and StatusSink contracts.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/laoshi-bot/laoshi/internal/attach"
	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
)

const (
	// rejectEmoji marks messages the bot will not act on: unknown
	// conversations and turns from non-owners.
	rejectEmoji = "🚧"

	// startingText is the initial status message, edited in place by the
	// reporter for the session's lifetime.
	startingText = "starting..."

	// threadAutoArchiveMinutes is how long Discord keeps a created thread
	// active without messages.
	threadAutoArchiveMinutes = 60

	// maxAttachmentBytes caps a single attachment download.
	maxAttachmentBytes = 25 << 20
)

// Submitter is the controller-side contract the gateway drives.
type Submitter interface {
	Submit(author session.UserID, conv session.ConversationID, turn *session.Turn, chat session.Conversation) (session.Outcome, error)
}

// OwnerRecorder records conversation ownership at thread creation.
type OwnerRecorder interface {
	RecordOwner(conv session.ConversationID, owner session.UserID) error
}

// Config contains all required parameters for the Gateway.
type Config struct {
	Token          string
	EntryChannelID uint64
	Controller     Submitter
	Owners         OwnerRecorder
	Logger         log.Logger

	// HTTPClient fetches attachment bytes. nil uses a default with a
	// 30 second timeout.
	HTTPClient *http.Client
}

func (cfg Config) validate() error {
	if cfg.Token == "" {
		return errors.New("discord token is required")
	}
	if cfg.EntryChannelID == 0 {
		return errors.New("entry channel id is required")
	}
	if cfg.Controller == nil {
		return errors.New("controller is required")
	}
	if cfg.Owners == nil {
		return errors.New("owner recorder is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Gateway is the Discord-facing edge of the bot.
type Gateway struct {
	ds           *discordgo.Session
	entryChannel string
	controller   Submitter
	owners       OwnerRecorder
	logger       log.Logger
	http         *http.Client

	ctx context.Context //nolint:containedctx // App lifecycle context, set in Open
}

// New creates a Gateway. Call Open to connect.
func New(cfg Config) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ds, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	ds.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	g := &Gateway{
		ds:           ds,
		entryChannel: strconv.FormatUint(cfg.EntryChannelID, 10),
		controller:   cfg.Controller,
		owners:       cfg.Owners,
		logger:       cfg.Logger,
		http:         httpClient,
	}
	ds.AddHandler(g.onMessageCreate)
	return g, nil
}

// Open connects to the Discord gateway. ctx scopes all outbound calls
// made on behalf of inbound events; cancel it before Close.
func (g *Gateway) Open(ctx context.Context) error {
	g.ctx = ctx
	if err := g.ds.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	g.logger.Info("discord gateway connected", "entryChannel", g.entryChannel)
	return nil
}

// Close disconnects from Discord.
func (g *Gateway) Close() error {
	return g.ds.Close()
}

// onMessageCreate is the inbound event router: it resolves the event to
// a conversation, validates authorship via the controller, and submits
// the turn. All rejections get a visible marker reaction.
func (g *Gateway) onMessageCreate(ds *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	var botID string
	if ds.State != nil && ds.State.User != nil {
		botID = ds.State.User.ID
	}
	content := StripMention(m.Content, botID)
	if content == "" {
		return
	}

	author, err := parseSnowflake(m.Author.ID)
	if err != nil {
		g.logger.Error("parsing author id", "id", m.Author.ID, "error", err)
		return
	}

	ctx := g.ctx
	var conv session.ConversationID
	var threadID string

	if m.ChannelID == g.entryChannel {
		ch, err := ds.ThreadStart(m.ChannelID, ThreadTitle(content),
			discordgo.ChannelTypeGuildPublicThread, threadAutoArchiveMinutes,
			discordgo.WithContext(ctx))
		if err != nil {
			g.logger.Error("creating thread", "channel", m.ChannelID, "error", err)
			g.reject(ctx, m)
			return
		}
		id, err := parseSnowflake(ch.ID)
		if err != nil {
			g.logger.Error("parsing thread id", "id", ch.ID, "error", err)
			return
		}
		if err := g.owners.RecordOwner(session.ConversationID(id), session.UserID(author)); err != nil {
			g.logger.Error("recording thread owner", "conversation", id, "error", err)
			g.reject(ctx, m)
			return
		}
		conv, threadID = session.ConversationID(id), ch.ID
	} else {
		id, err := parseSnowflake(m.ChannelID)
		if err != nil {
			g.logger.Error("parsing channel id", "id", m.ChannelID, "error", err)
			return
		}
		conv, threadID = session.ConversationID(id), m.ChannelID
	}

	turn := g.buildTurn(ctx, content, m.Attachments)

	outcome, err := g.controller.Submit(session.UserID(author), conv, turn, &thread{gateway: g, id: threadID})
	switch {
	case errors.Is(err, session.ErrUnknownConversation), errors.Is(err, session.ErrWrongAuthor):
		g.logger.Debug("rejected turn", "conversation", uint64(conv), "author", author, "error", err)
		g.reject(ctx, m)
	case err != nil:
		g.logger.Error("submitting turn", "conversation", uint64(conv), "error", err)
		g.reject(ctx, m)
	default:
		g.logger.Debug("accepted turn", "conversation", uint64(conv), "outcome", outcome.String())
	}
}

// buildTurn assembles the immutable Turn: text first, then every
// inlineable attachment the classifier admits.
func (g *Gateway) buildTurn(ctx context.Context, content string, attachments []*discordgo.MessageAttachment) *session.Turn {
	descriptors := make([]attach.Descriptor, 0, len(attachments))
	for _, a := range attachments {
		url := a.URL
		descriptors = append(descriptors, attach.Descriptor{
			Name:      a.Filename,
			MediaType: a.ContentType,
			Fetch: func(ctx context.Context) ([]byte, error) {
				return g.fetch(ctx, url)
			},
		})
	}
	inline, ignored := attach.Classify(ctx, g.logger, descriptors)

	parts := make([]session.Part, 0, len(inline)+1)
	parts = append(parts, session.Part{Text: content})
	parts = append(parts, inline...)
	return &session.Turn{Parts: parts, Ignored: ignored}
}

// fetch downloads attachment bytes from Discord's CDN.
func (g *Gateway) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching attachment: status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
}

// reject attaches the visible rejection marker to the user's message.
func (g *Gateway) reject(ctx context.Context, m *discordgo.MessageCreate) {
	if err := g.ds.MessageReactionAdd(m.ChannelID, m.ID, rejectEmoji, discordgo.WithContext(ctx)); err != nil {
		g.logger.Warn("adding rejection reaction", "message", m.ID, "error", err)
	}
}

func parseSnowflake(id string) (uint64, error) {
	return strconv.ParseUint(id, 10, 64)
}
