// Package chatcache implements the Chat Cache (spec.md §4.6): an
// in-memory, disk-backed snapshot of every chat the bot belongs to,
// rebuilt by a type-parallel fetch and a rate-limited batched peer-name
// resolver. Grounded on the teacher's internal/memory persistence helpers
// for the load-mutate-atomic-save shape, and on its pkg/telegram fan-out
// pattern for the type-parallel fetch, now expressed with
// golang.org/x/sync/errgroup instead of a raw sync.WaitGroup — the pack's
// idiomatic way to join a bounded set of fallible parallel calls.
package chatcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
)

// chatTypes is the fixed set of chat types fetched in parallel (§4.6).
var chatTypes = []string{"Personal", "Direct", "Group", "Team", "Everyone"}

// peerResolver is the narrow platform-client surface the cache needs,
// kept small so unit tests can fake it without a real Client.
type peerResolver interface {
	ListChats(ctx context.Context, chatType string, limit int) ([]rctypes.ChatRecord, error)
	CurrentExtension(ctx context.Context) (string, error)
	GetPerson(ctx context.Context, userID string) (string, error)
}

// Cache is the per-account chat snapshot.
type Cache struct {
	client    peerResolver
	log       *logger.Logger
	path      string
	accountID string

	mu      sync.RWMutex
	ownerID string
	chats   []rctypes.CachedChat
}

// New loads any existing on-disk snapshot for accountID under workspace
// (spec.md §4.6: "on start: restore from disk; no automatic network
// sync").
func New(client peerResolver, log *logger.Logger, workspace, accountID string) *Cache {
	c := &Cache{
		client:    client,
		log:       log.WithComponent("chatcache"),
		path:      snapshotPath(workspace),
		accountID: accountID,
	}
	c.restore()
	return c
}

func snapshotPath(workspace string) string {
	return filepath.Join(workspace, "memory", "ringcentral-chat-cache.json")
}

func (c *Cache) restore() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var file rctypes.ChatCacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		c.log.Warn("discarding unreadable chat cache snapshot", "path", c.path, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownerID = file.OwnerID
	c.chats = file.Chats
}

// Snapshot returns a copy of the current in-memory chats.
func (c *Cache) Snapshot() []rctypes.CachedChat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]rctypes.CachedChat, len(c.chats))
	copy(out, c.chats)
	return out
}

// OwnerID returns the cached owner id, if resolved.
func (c *Cache) OwnerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ownerID
}

// RefreshResult reports how many chats the cache now holds.
type RefreshResult struct {
	Count int
}

// Refresh implements `refresh() -> {count}` (§4.6): a type-parallel fetch
// across all five chat types plus the current-user lookup, peer-name
// resolution for empty-named Direct chats, and a diff-gated atomic save.
func (c *Cache) Refresh(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult
	err := c.log.LogOperation(ctx, "chat_cache_refresh", func() error {
		var err error
		result, err = c.refresh(ctx)
		return err
	})
	return result, err
}

func (c *Cache) refresh(ctx context.Context) (RefreshResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	var ownerID string
	perType := make([][]rctypes.ChatRecord, len(chatTypes))

	g.Go(func() error {
		id, err := c.client.CurrentExtension(gctx)
		if err != nil {
			c.log.Warn("current extension lookup failed during refresh", "error", err)
			return nil
		}
		ownerID = id
		return nil
	})

	for i, t := range chatTypes {
		i, t := i, t
		g.Go(func() error {
			records, err := c.client.ListChats(gctx, t, 250)
			if err != nil {
				c.log.Warn("list chats failed during refresh", "chatType", t, "error", err)
				return nil
			}
			perType[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return RefreshResult{}, fmt.Errorf("chat cache refresh: %w", err)
	}

	var normalized []rctypes.CachedChat
	var pending []pendingResolve

	for i, records := range perType {
		chatType := chatTypes[i]
		for _, rec := range records {
			cached := rctypes.CachedChat{
				ID:      rec.ID,
				Name:    rec.Name,
				Type:    rctypes.ChatType(chatType),
				Members: rec.Members,
			}
			if chatType == "Personal" && cached.Name == "" {
				cached.Name = "(Personal)"
			}
			if chatType == "Direct" && cached.Name == "" {
				peerID := firstNonOwner(ownerID, rec.Members)
				if peerID != "" {
					pending = append(pending, pendingResolve{index: len(normalized), peerID: peerID})
				}
			}
			normalized = append(normalized, cached)
		}
	}

	c.resolvePeerNames(ctx, normalized, pending)

	sort.Slice(normalized, func(i, j int) bool { return normalized[i].ID < normalized[j].ID })

	changed := c.diff(ownerID, normalized)
	c.mu.Lock()
	if ownerID != "" {
		c.ownerID = ownerID
	}
	c.chats = normalized
	count := len(c.chats)
	c.mu.Unlock()

	if changed {
		if err := c.persist(); err != nil {
			c.log.Warn("failed to persist chat cache snapshot", "error", err)
		}
	}

	return RefreshResult{Count: count}, nil
}

// pendingResolve tracks a Direct chat whose display name still needs a
// peer-name lookup.
type pendingResolve struct {
	index  int
	peerID string
}

// peerResolveLimiter gates resolvePeerNames to fixed batches of 3 every
// 200ms (spec.md §4.6, §5), using golang.org/x/time/rate instead of a
// hand-rolled sleep loop: a burst of 3 tokens refilling at 3 per 200ms is
// the leaky-bucket equivalent of "batches of 3 separated by a 200ms
// sleep" spec.md §9 calls out as an acceptable substitute.
const peerResolveBatchSize = 3

func newPeerResolveLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(200*time.Millisecond/peerResolveBatchSize), peerResolveBatchSize)
}

// resolvePeerNames resolves Direct-chat display names in fixed batches of
// 3, rate-limited to stay under the platform's auth-adjacent call budget
// (spec.md §4.6, §5). A failed lookup leaves the raw id in place.
func (c *Cache) resolvePeerNames(ctx context.Context, chats []rctypes.CachedChat, pending []pendingResolve) {
	limiter := newPeerResolveLimiter()

	for start := 0; start < len(pending); start += peerResolveBatchSize {
		end := start + peerResolveBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if err := limiter.WaitN(ctx, len(batch)); err != nil {
			return
		}

		var wg sync.WaitGroup
		for _, item := range batch {
			item := item
			wg.Add(1)
			go func() {
				defer wg.Done()
				name, err := c.client.GetPerson(ctx, item.peerID)
				if err != nil {
					chats[item.index].Name = item.peerID
					return
				}
				if name != "" {
					chats[item.index].Name = name
				}
			}()
		}
		wg.Wait()
	}
}

func firstNonOwner(ownerID string, members []string) string {
	for _, m := range members {
		if m != ownerID {
			return m
		}
	}
	if len(members) > 0 {
		return members[0]
	}
	return ""
}

// diff reports whether the candidate snapshot differs from the current
// in-memory one by id-set or by any name (§4.6: "persist only when a diff
// is detected").
func (c *Cache) diff(ownerID string, candidate []rctypes.CachedChat) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ownerID != "" && ownerID != c.ownerID {
		return true
	}
	if len(candidate) != len(c.chats) {
		return true
	}

	byID := make(map[string]rctypes.CachedChat, len(c.chats))
	for _, ch := range c.chats {
		byID[ch.ID] = ch
	}
	for _, ch := range candidate {
		prev, ok := byID[ch.ID]
		if !ok || prev.Name != ch.Name {
			return true
		}
	}
	return false
}

func (c *Cache) persist() error {
	c.mu.RLock()
	file := rctypes.ChatCacheFile{
		UpdatedAt: time.Now(),
		OwnerID:   c.ownerID,
		Chats:     c.chats,
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat cache snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create chat cache directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write chat cache temp file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename chat cache temp file: %w", err)
	}
	return nil
}

// FindDirectChatByMember implements findDirectChatByMember(memberId)
// (§4.6): an exact two-member match when ownerId is known, else
// best-effort membership search.
func (c *Cache) FindDirectChatByMember(memberID string) (rctypes.CachedChat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ownerID != "" {
		for _, ch := range c.chats {
			if ch.Type != rctypes.ChatTypeDirect {
				continue
			}
			if len(ch.Members) == 2 && containsBoth(ch.Members, c.ownerID, memberID) {
				return ch, true
			}
		}
		return rctypes.CachedChat{}, false
	}

	for _, ch := range c.chats {
		if ch.Type != rctypes.ChatTypeDirect {
			continue
		}
		for _, m := range ch.Members {
			if m == memberID {
				return ch, true
			}
		}
	}
	return rctypes.CachedChat{}, false
}

func containsBoth(members []string, a, b string) bool {
	hasA, hasB := false, false
	for _, m := range members {
		if m == a {
			hasA = true
		}
		if m == b {
			hasB = true
		}
	}
	return hasA && hasB
}
