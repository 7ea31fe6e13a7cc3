// Package runtime declares the contracts the bridge expects from the host
// agent runtime (spec.md §1's "explicitly out of scope" collaborators:
// session keying, reply dispatch, media toolkit, command/mention gating,
// pairing store) and ships a minimal in-memory default so the bridge is
// runnable and testable standalone. Grounded on the teacher's
// internal/memory and internal/routing packages for the shape of a
// small-interface-plus-in-memory-default pairing (the teacher injects a
// `Store` interface into its handlers the same way).
package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
)

// Peer identifies the routing target of an inbound message, as handed to
// the session keyer (spec.md §4.4 stage 9).
type Peer struct {
	Kind rctypes.PeerKind
	ID   string
}

// SessionKeyer computes the opaque session key the agent runtime uses to
// keep conversation state distinct per (channel, account, peer).
type SessionKeyer interface {
	SessionKey(channel, accountID string, peer Peer) string
}

// ReplyDispatcher receives the normalized envelope and invokes deliver for
// each buffered block of the agent's reply (spec.md §4.4 stage 19, §4.5).
// typingPostId, when non-empty, is consumed by the first delivery only.
type ReplyDispatcher interface {
	Dispatch(ctx context.Context, envelope rctypes.Envelope, typingPostID string, deliver func(ctx context.Context, payload rctypes.ReplyPayload, typingPostID string) error) error
}

// MediaToolkit fetches remote media (for the outbound media branch) and
// saves inbound attachment bytes to local storage (for pipeline stage 15).
type MediaToolkit interface {
	FetchRemote(ctx context.Context, url string, maxBytes int64) (data []byte, contentType string, err error)
	SaveInbound(ctx context.Context, accountID, chatID string, data []byte, contentType, name string) (path string, err error)
}

// MentionGate evaluates stage 14's mention-gating decision.
type MentionGate interface {
	ShouldSkip(requireMention, wasMentioned, hasAnyMention, hasControlCommand, commandAuthorized bool) bool
}

// CommandHelper detects whether a message is a command and, if so, whether
// it is a "control" command subject to authorization (spec.md §4.4 stage
// 13).
type CommandHelper interface {
	IsCommand(body string) bool
	IsControlCommand(body string) bool
	CommandBody(body string) string
}

// TextChunker splits an outbound text into sendable chunks (spec.md §4.5).
type TextChunker interface {
	Chunk(text string, limit int, mode string) []string
}

// PairingStore supplements the configured DM allow-list with sender ids a
// prior out-of-band pairing flow has approved (spec.md §4.4 stage 12).
type PairingStore interface {
	AllowFrom(accountID string) []string
}

// SessionMetaStore persists the human-readable conversation label and
// other per-session metadata the pipeline records in stage 17.
type SessionMetaStore interface {
	Get(sessionKey string) (label string, ok bool)
	Set(sessionKey, label string)
}

// Collaborators bundles every external contract the pipeline and outbound
// delivery components need, so callers wire one value instead of eight.
type Collaborators struct {
	Sessions     SessionKeyer
	Dispatcher   ReplyDispatcher
	Media        MediaToolkit
	Mentions     MentionGate
	Commands     CommandHelper
	Chunker      TextChunker
	Pairing      PairingStore
	SessionMeta  SessionMetaStore
}

// DefaultCollaborators returns a minimal in-memory implementation of every
// contract, sufficient to run and test the bridge without a real agent
// runtime attached.
func DefaultCollaborators() Collaborators {
	meta := newInMemorySessionMeta()
	return Collaborators{
		Sessions:    simpleSessionKeyer{},
		Dispatcher:  bufferedDispatcher{},
		Media:       noopMediaToolkit{},
		Mentions:    defaultMentionGate{},
		Commands:    slashCommandHelper{},
		Chunker:     simpleChunker{},
		Pairing:     emptyPairingStore{},
		SessionMeta: meta,
	}
}

type simpleSessionKeyer struct{}

func (simpleSessionKeyer) SessionKey(channel, accountID string, peer Peer) string {
	return fmt.Sprintf("%s:%s:%s:%s", channel, accountID, peer.Kind, peer.ID)
}

// bufferedDispatcher delivers the envelope's body as a single reply block.
// A real agent runtime replaces this with one that streams model output
// into buffered blocks as it is produced.
type bufferedDispatcher struct{}

func (bufferedDispatcher) Dispatch(ctx context.Context, envelope rctypes.Envelope, typingPostID string, deliver func(ctx context.Context, payload rctypes.ReplyPayload, typingPostID string) error) error {
	return deliver(ctx, rctypes.ReplyPayload{Text: envelope.Body}, typingPostID)
}

type noopMediaToolkit struct{}

func (noopMediaToolkit) FetchRemote(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	return nil, "", fmt.Errorf("media toolkit: FetchRemote not configured")
}

func (noopMediaToolkit) SaveInbound(ctx context.Context, accountID, chatID string, data []byte, contentType, name string) (string, error) {
	return "", fmt.Errorf("media toolkit: SaveInbound not configured")
}

type defaultMentionGate struct{}

func (defaultMentionGate) ShouldSkip(requireMention, wasMentioned, hasAnyMention, hasControlCommand, commandAuthorized bool) bool {
	if !requireMention {
		return false
	}
	if wasMentioned {
		return false
	}
	if hasControlCommand && commandAuthorized {
		return false
	}
	if hasAnyMention {
		// Mentioned someone else, not us: still gated.
		return true
	}
	return true
}

type slashCommandHelper struct{}

func (slashCommandHelper) IsCommand(body string) bool {
	return strings.HasPrefix(strings.TrimSpace(body), "/")
}

func (slashCommandHelper) IsControlCommand(body string) bool {
	trimmed := strings.TrimSpace(body)
	for _, c := range []string{"/reset", "/stop", "/pause", "/resume", "/forget"} {
		if strings.HasPrefix(strings.ToLower(trimmed), c) {
			return true
		}
	}
	return false
}

func (slashCommandHelper) CommandBody(body string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), "/"))
}

type simpleChunker struct{}

func (simpleChunker) Chunk(text string, limit int, mode string) []string {
	if limit <= 0 {
		limit = 4000
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	switch mode {
	case "newline":
		chunks = chunkByNewline(text, limit)
	default:
		chunks = chunkByLength(text, limit)
	}
	return chunks
}

func chunkByLength(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}

func chunkByNewline(text string, limit int) []string {
	lines := strings.Split(text, "\n")
	var chunks []string
	var current strings.Builder
	for _, line := range lines {
		if current.Len() > 0 && current.Len()+len(line)+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		if len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, chunkByLength(line, limit)...)
			continue
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

type emptyPairingStore struct{}

func (emptyPairingStore) AllowFrom(accountID string) []string { return nil }

type inMemorySessionMeta struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemorySessionMeta() *inMemorySessionMeta {
	return &inMemorySessionMeta{data: make(map[string]string)}
}

func (s *inMemorySessionMeta) Get(sessionKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[sessionKey]
	return v, ok
}

func (s *inMemorySessionMeta) Set(sessionKey, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionKey] = label
}
