package pipeline

import (
	"context"
	"log/slog"
	"testing"

	"github.com/openclaw/ringcentral-bridge/internal/grouplog"
	"github.com/openclaw/ringcentral-bridge/internal/ledger"
	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/outbound"
	"github.com/openclaw/ringcentral-bridge/internal/platform"
	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
	"github.com/openclaw/ringcentral-bridge/internal/runtime"
)

type fakePlatformClient struct {
	chat         *rctypes.ChatRecord
	chatErr      error
	posts        []string
	createPostID string
}

func (f *fakePlatformClient) GetChat(ctx context.Context, chatID string) (*rctypes.ChatRecord, error) {
	return f.chat, f.chatErr
}

func (f *fakePlatformClient) DownloadAttachment(ctx context.Context, contentURI string, maxBytes int64) (*platform.DownloadResult, error) {
	return &platform.DownloadResult{Buffer: []byte("x"), ContentType: "image/png"}, nil
}

func (f *fakePlatformClient) CreatePost(ctx context.Context, chatID, text, attachmentID string) (string, error) {
	f.posts = append(f.posts, text)
	if f.createPostID != "" {
		return f.createPostID, nil
	}
	return "typing-1", nil
}

func (f *fakePlatformClient) UpdatePost(ctx context.Context, chatID, postID, text string) error {
	return nil
}

func (f *fakePlatformClient) DeletePost(ctx context.Context, chatID, postID string) error {
	return nil
}

func (f *fakePlatformClient) UploadAttachment(ctx context.Context, chatID, filename, contentType string, data []byte) (string, error) {
	return "", nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "text"})
}

func testAccount() *rcconfig.AccountConfig {
	a := &rcconfig.AccountConfig{
		AccountID:      "acct-1",
		GroupPolicy:    rcconfig.GroupPolicyOpen,
		DMPolicy:       rcconfig.DMPolicyOpen,
		MediaMaxMb:     20,
		TextChunkLimit: 4000,
		ChunkMode:      rcconfig.ChunkModeLength,
	}
	return a
}

func newTestPipeline(t *testing.T, account *rcconfig.AccountConfig, client *fakePlatformClient, owner string) (*Pipeline, *ledger.Ledger, *testDispatcher) {
	t.Helper()
	ledg := ledger.New()
	groupLog := grouplog.New(t.TempDir())
	collab := runtime.DefaultCollaborators()
	dispatcher := &testDispatcher{}
	collab.Dispatcher = dispatcher

	deliverer := outbound.New(client, ledg, noopMedia{}, noopChunker{}, nil, testLogger(), account)

	p := New(account, client, ledg, groupLog, collab, deliverer, func() string { return owner }, testLogger())
	return p, ledg, dispatcher
}

type testDispatcher struct {
	called   bool
	envelope rctypes.Envelope
}

func (d *testDispatcher) Dispatch(ctx context.Context, envelope rctypes.Envelope, typingPostID string, deliver func(ctx context.Context, payload rctypes.ReplyPayload, typingPostID string) error) error {
	d.called = true
	d.envelope = envelope
	return deliver(ctx, rctypes.ReplyPayload{Text: "ack"}, typingPostID)
}

type noopMedia struct{}

func (noopMedia) FetchRemote(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	return nil, "", nil
}
func (noopMedia) SaveInbound(ctx context.Context, accountID, chatID string, data []byte, contentType, name string) (string, error) {
	return "", nil
}

type noopChunker struct{}

func (noopChunker) Chunk(text string, limit int, mode string) []string { return []string{text} }

func dmEvent(chatID, senderID, text string) rctypes.InboundEvent {
	return rctypes.InboundEvent{
		EventPath: "/restapi/v1.0/glip/posts",
		Body: rctypes.InboundBody{
			ID:        "msg-1",
			GroupID:   chatID,
			CreatorID: senderID,
			Text:      text,
			EventType: "PostAdded",
		},
	}
}

func TestHandleDispatchesAdmittedDM(t *testing.T) {
	client := &fakePlatformClient{chat: &rctypes.ChatRecord{ID: "chat-1", Type: rctypes.ChatTypePersonal, Members: []string{"owner-1", "sender-1"}}}
	p, ledg, dispatcher := newTestPipeline(t, testAccount(), client, "owner-1")

	err := p.Handle(context.Background(), dmEvent("chat-1", "sender-1", "hello"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !dispatcher.called {
		t.Fatalf("expected dispatcher to be called")
	}
	if ledg.Len() == 0 {
		t.Errorf("expected ledger to record produced post ids")
	}
}

func TestHandleDropsSelfEcho(t *testing.T) {
	client := &fakePlatformClient{chat: &rctypes.ChatRecord{ID: "chat-1", Type: rctypes.ChatTypePersonal}}
	p, ledg, dispatcher := newTestPipeline(t, testAccount(), client, "owner-1")
	ledg.Add("msg-1")

	if err := p.Handle(context.Background(), dmEvent("chat-1", "sender-1", "hello")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if dispatcher.called {
		t.Errorf("expected self-echo to be dropped without dispatch")
	}
}

func TestHandleDropsLoopGuardMarker(t *testing.T) {
	client := &fakePlatformClient{chat: &rctypes.ChatRecord{ID: "chat-1", Type: rctypes.ChatTypePersonal}}
	p, _, dispatcher := newTestPipeline(t, testAccount(), client, "owner-1")

	err := p.Handle(context.Background(), dmEvent("chat-1", "sender-1", "> Bob is thinking..."))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if dispatcher.called {
		t.Errorf("expected loop-guard marker to be dropped without dispatch")
	}
}

func TestHandleDropsDisabledGroupPolicy(t *testing.T) {
	account := testAccount()
	account.GroupPolicy = rcconfig.GroupPolicyDisabled
	client := &fakePlatformClient{chat: &rctypes.ChatRecord{ID: "group-1", Type: rctypes.ChatTypeGroup, Name: "Team Chat"}}
	p, _, dispatcher := newTestPipeline(t, account, client, "owner-1")

	if err := p.Handle(context.Background(), dmEvent("group-1", "sender-1", "hello team")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if dispatcher.called {
		t.Errorf("expected disabled group policy to drop the event")
	}
}

func TestHandleDropsUnconfiguredGroup(t *testing.T) {
	account := testAccount()
	account.GroupPolicy = rcconfig.GroupPolicyAllowlist
	account.Groups = map[string]rcconfig.GroupOverride{"other-group": {}}
	client := &fakePlatformClient{chat: &rctypes.ChatRecord{ID: "group-1", Type: rctypes.ChatTypeGroup, Name: "Team Chat"}}
	p, _, dispatcher := newTestPipeline(t, account, client, "owner-1")

	if err := p.Handle(context.Background(), dmEvent("group-1", "sender-1", "hello team")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if dispatcher.called {
		t.Errorf("expected unconfigured group to be dropped")
	}
}

func TestHandleAdmitsWildcardConfiguredGroup(t *testing.T) {
	account := testAccount()
	account.GroupPolicy = rcconfig.GroupPolicyAllowlist
	account.Groups = map[string]rcconfig.GroupOverride{"*": {}}
	client := &fakePlatformClient{chat: &rctypes.ChatRecord{ID: "group-1", Type: rctypes.ChatTypeGroup, Name: "Team Chat", Members: []string{"owner-1", "sender-1"}}}
	p, _, dispatcher := newTestPipeline(t, account, client, "owner-1")

	if err := p.Handle(context.Background(), dmEvent("group-1", "sender-1", "hello team")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !dispatcher.called {
		t.Errorf("expected wildcard-configured group to be admitted")
	}
}
