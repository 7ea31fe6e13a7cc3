package chatcache

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
)

type fakeResolver struct {
	ownerID string
	byType  map[string][]rctypes.ChatRecord
	names   map[string]string
}

func (f *fakeResolver) ListChats(ctx context.Context, chatType string, limit int) ([]rctypes.ChatRecord, error) {
	return f.byType[chatType], nil
}

func (f *fakeResolver) CurrentExtension(ctx context.Context) (string, error) {
	return f.ownerID, nil
}

func (f *fakeResolver) GetPerson(ctx context.Context, userID string) (string, error) {
	return f.names[userID], nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "text"})
}

func TestRefreshResolvesDirectPeerNamesAndPersists(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{
		ownerID: "owner-1",
		byType: map[string][]rctypes.ChatRecord{
			"Direct": {
				{ID: "d1", Name: "", Members: []string{"owner-1", "peer-1"}},
			},
			"Personal": {
				{ID: "p1", Name: ""},
			},
		},
		names: map[string]string{"peer-1": "Peer One"},
	}

	cache := New(resolver, testLogger(), dir, "account-1")
	result, err := cache.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if result.Count != 2 {
		t.Fatalf("expected 2 chats, got %d", result.Count)
	}

	snap := cache.Snapshot()
	var direct, personal rctypes.CachedChat
	for _, ch := range snap {
		switch ch.ID {
		case "d1":
			direct = ch
		case "p1":
			personal = ch
		}
	}
	if direct.Name != "Peer One" {
		t.Errorf("expected resolved peer name, got %q", direct.Name)
	}
	if personal.Name != "(Personal)" {
		t.Errorf("expected literal (Personal) fallback, got %q", personal.Name)
	}

	if cache.OwnerID() != "owner-1" {
		t.Errorf("expected ownerId to be recorded, got %q", cache.OwnerID())
	}

	if _, err := filepath.Abs(snapshotPath(dir)); err != nil {
		t.Fatalf("snapshotPath: %v", err)
	}

	reloaded := New(resolver, testLogger(), dir, "account-1")
	if reloaded.OwnerID() != "owner-1" {
		t.Errorf("expected on-disk snapshot to restore ownerId, got %q", reloaded.OwnerID())
	}
	if len(reloaded.Snapshot()) != 2 {
		t.Errorf("expected restored snapshot to have 2 chats, got %d", len(reloaded.Snapshot()))
	}
}

func TestFindDirectChatByMember(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{
		ownerID: "owner-1",
		byType: map[string][]rctypes.ChatRecord{
			"Direct": {
				{ID: "d1", Name: "X", Members: []string{"owner-1", "peer-1"}},
				{ID: "d2", Name: "Y", Members: []string{"owner-1", "peer-2"}},
			},
		},
	}
	cache := New(resolver, testLogger(), dir, "account-1")
	if _, err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	chat, ok := cache.FindDirectChatByMember("peer-2")
	if !ok || chat.ID != "d2" {
		t.Fatalf("expected exact match on d2, got %+v ok=%v", chat, ok)
	}

	if _, ok := cache.FindDirectChatByMember("unknown"); ok {
		t.Errorf("expected no match for unknown member")
	}
}
