package outbound

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/openclaw/ringcentral-bridge/internal/ledger"
	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
)

type fakeClient struct {
	posts       []string
	updated     map[string]string
	deletedErr  error
	deleted     []string
	uploadCalls int
}

func (f *fakeClient) CreatePost(ctx context.Context, chatID, text, attachmentID string) (string, error) {
	id := "post-" + text
	if attachmentID != "" {
		id = "post-media-" + attachmentID
	}
	f.posts = append(f.posts, text)
	return id, nil
}

func (f *fakeClient) UpdatePost(ctx context.Context, chatID, postID, text string) error {
	if f.updated == nil {
		f.updated = make(map[string]string)
	}
	f.updated[postID] = text
	return nil
}

func (f *fakeClient) DeletePost(ctx context.Context, chatID, postID string) error {
	f.deleted = append(f.deleted, postID)
	return f.deletedErr
}

func (f *fakeClient) UploadAttachment(ctx context.Context, chatID, filename, contentType string, data []byte) (string, error) {
	f.uploadCalls++
	return "attachment-1", nil
}

type fakeMedia struct{}

func (fakeMedia) FetchRemote(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	return []byte("data"), "image/png", nil
}

func (fakeMedia) SaveInbound(ctx context.Context, accountID, chatID string, data []byte, contentType, name string) (string, error) {
	return "", nil
}

type lengthChunker struct{}

func (lengthChunker) Chunk(text string, limit int, mode string) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var out []string
	for len(text) > 0 {
		n := limit
		if n > len(text) {
			n = len(text)
		}
		out = append(out, text[:n])
		text = text[n:]
	}
	return out
}

type countingNotifier struct{ calls int }

func (c *countingNotifier) RecordOutbound() { c.calls++ }

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "text"})
}

func testAccount() *rcconfig.AccountConfig {
	return &rcconfig.AccountConfig{
		AccountID:      "acct-1",
		MediaMaxMb:     20,
		TextChunkLimit: 4000,
		ChunkMode:      rcconfig.ChunkModeLength,
	}
}

func TestDeliverTextEditsTypingPostOnFirstChunk(t *testing.T) {
	client := &fakeClient{}
	notifier := &countingNotifier{}
	d := New(client, ledger.New(), fakeMedia{}, lengthChunker{}, notifier, testLogger(), testAccount())

	err := d.Deliver(context.Background(), "chat-1", rctypes.ReplyPayload{Text: "hello world"}, "typing-1")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if _, ok := client.updated["typing-1"]; !ok {
		t.Fatalf("expected typing post to be edited, updated=%v", client.updated)
	}
	if !strings.Contains(client.updated["typing-1"], "hello world") {
		t.Errorf("expected wrapped text in edited post, got %q", client.updated["typing-1"])
	}
	if notifier.calls != 1 {
		t.Errorf("expected 1 outbound notification, got %d", notifier.calls)
	}
}

func TestDeliverTextChunksLongReplyAcrossMultiplePosts(t *testing.T) {
	client := &fakeClient{}
	d := New(client, ledger.New(), fakeMedia{}, lengthChunker{}, nil, testLogger(), testAccount())
	d.account.TextChunkLimit = 20

	longText := strings.Repeat("x", 100)
	if err := d.Deliver(context.Background(), "chat-1", rctypes.ReplyPayload{Text: longText}, ""); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(client.posts) < 2 {
		t.Fatalf("expected multiple chunk posts, got %d", len(client.posts))
	}
}

func TestDeliverMediaFallsBackToCaptionWhenTypingPostDeleteFails(t *testing.T) {
	client := &fakeClient{deletedErr: errors.New("not found")}
	ledg := ledger.New()
	d := New(client, ledg, fakeMedia{}, lengthChunker{}, nil, testLogger(), testAccount())

	err := d.Deliver(context.Background(), "chat-1", rctypes.ReplyPayload{
		Text:      "here is your file",
		MediaURLs: []string{"https://example.com/a.png"},
	}, "typing-1")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if client.updated["typing-1"] != "here is your file" {
		t.Errorf("expected typing post edited with caption fallback, got %q", client.updated["typing-1"])
	}
	if client.uploadCalls != 1 {
		t.Errorf("expected one upload call, got %d", client.uploadCalls)
	}
	if !ledg.Contains("post-media-attachment-1") {
		t.Errorf("expected produced media post id to be ledgered")
	}
}

func TestDeliverMediaOnlyFirstCaptionCarriesText(t *testing.T) {
	client := &fakeClient{}
	d := New(client, ledger.New(), fakeMedia{}, lengthChunker{}, nil, testLogger(), testAccount())

	err := d.Deliver(context.Background(), "chat-1", rctypes.ReplyPayload{
		Text:      "caption",
		MediaURLs: []string{"https://example.com/a.png", "https://example.com/b.png"},
	}, "")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(client.posts) != 2 {
		t.Fatalf("expected 2 media posts, got %d", len(client.posts))
	}
	if client.posts[0] != "caption" {
		t.Errorf("expected first post to carry caption, got %q", client.posts[0])
	}
	if client.posts[1] != "" {
		t.Errorf("expected second post to carry no caption, got %q", client.posts[1])
	}
}
