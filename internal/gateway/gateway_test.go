package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
)

type stubSubmitter struct{}

func (stubSubmitter) Submit(session.UserID, session.ConversationID, *session.Turn, session.Conversation) (session.Outcome, error) {
	return session.Started, nil
}

type stubRecorder struct{}

func (stubRecorder) RecordOwner(session.ConversationID, session.UserID) error { return nil }

func testConfig() Config {
	return Config{
		Token:          "test-token",
		EntryChannelID: 42,
		Controller:     stubSubmitter{},
		Owners:         stubRecorder{},
		Logger:         log.NewNop(),
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Token = "" }},
		{"missing entry channel", func(c *Config) { c.EntryChannelID = 0 }},
		{"missing controller", func(c *Config) { c.Controller = nil }},
		{"missing owners", func(c *Config) { c.Owners = nil }},
		{"missing logger", func(c *Config) { c.Logger = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New() accepted invalid config")
			}
		})
	}

	if _, err := New(testConfig()); err != nil {
		t.Errorf("New() with valid config = %v", err)
	}
}

func TestParseSnowflake(t *testing.T) {
	id, err := parseSnowflake("1234567890123456789")
	if err != nil {
		t.Fatalf("parseSnowflake() = %v", err)
	}
	if id != 1234567890123456789 {
		t.Errorf("parseSnowflake() = %d", id)
	}

	if _, err := parseSnowflake("not-a-snowflake"); err == nil {
		t.Error("parseSnowflake accepted garbage")
	}
}

func TestBuildTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	g, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	attachments := []*discordgo.MessageAttachment{
		{Filename: "photo.png", ContentType: "image/png", URL: srv.URL + "/photo.png"},
		{Filename: "notes.zip", ContentType: "application/zip", URL: srv.URL + "/notes.zip"},
	}

	turn := g.buildTurn(context.Background(), "看看這張圖", attachments)

	if len(turn.Parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(turn.Parts))
	}
	if turn.Parts[0].Text != "看看這張圖" {
		t.Errorf("first part = %q, want the message text", turn.Parts[0].Text)
	}
	if turn.Parts[1].MediaType != "image/png" || len(turn.Parts[1].Data) != 4 {
		t.Errorf("second part = %+v, want fetched png bytes", turn.Parts[1])
	}
	if len(turn.Ignored) != 1 || turn.Ignored[0].Name != "notes.zip" {
		t.Fatalf("Ignored = %v, want notes.zip", turn.Ignored)
	}
	if turn.Ignored[0].Reason != session.IgnoredInvalidType {
		t.Errorf("Ignored reason = %q, want invalid type", turn.Ignored[0].Reason)
	}
}

func TestBuildTurnFetchFailureDemotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	attachments := []*discordgo.MessageAttachment{
		{Filename: "gone.png", ContentType: "image/png", URL: srv.URL + "/gone.png"},
	}
	turn := g.buildTurn(context.Background(), "hi", attachments)

	if len(turn.Parts) != 1 {
		t.Errorf("got %d parts, want text only", len(turn.Parts))
	}
	if len(turn.Ignored) != 1 || turn.Ignored[0].Name != "gone.png" {
		t.Fatalf("Ignored = %v, want gone.png", turn.Ignored)
	}
	if turn.Ignored[0].Reason != session.IgnoredFetchFailed {
		t.Errorf("Ignored reason = %q, want fetch failure", turn.Ignored[0].Reason)
	}
}
