// Package rctypes defines the wire- and domain-level data model shared by
// every component of the bridge: chats, inbound events, attachments, and
// the normalized envelope handed to the agent runtime.
package rctypes

import "time"

// ChatType enumerates the conversation kinds the platform reports.
type ChatType string

const (
	ChatTypePersonal ChatType = "Personal"
	ChatTypeDirect   ChatType = "Direct"
	ChatTypeGroup    ChatType = "Group"
	ChatTypeTeam     ChatType = "Team"
	ChatTypeEveryone ChatType = "Everyone"
)

// IsDM reports whether a chat type is a one-to-one conversation.
func (t ChatType) IsDM() bool {
	return t == ChatTypePersonal || t == ChatTypeDirect || t == "PersonalChat"
}

// PeerKind is the routing classification handed to the agent runtime.
type PeerKind string

const (
	PeerKindChannel PeerKind = "channel"
	PeerKindGroup   PeerKind = "group"
	PeerKindDM      PeerKind = "dm"
)

// ChatRecord is the platform's view of a chat/team, as returned by the
// Team Messaging API.
type ChatRecord struct {
	ID          string
	Name        string
	Type        ChatType
	Members     []string
	Description string
}

// CachedChat is the persisted, normalized shape of a ChatRecord kept by the
// chat cache.
type CachedChat struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    ChatType `json:"type"`
	Members []string `json:"members"`
}

// ChatCacheFile is the on-disk representation at
// {workspace}/memory/ringcentral-chat-cache.json.
type ChatCacheFile struct {
	UpdatedAt time.Time    `json:"updatedAt"`
	OwnerID   string       `json:"ownerId,omitempty"`
	Chats     []CachedChat `json:"chats"`
}

// Mention is a single @-mention carried on an inbound post.
type Mention struct {
	ID   string
	Type string
	Name string
}

// Attachment describes a file/media object carried on an inbound post.
type Attachment struct {
	ID          string
	Type        string
	ContentURI  string
	ContentType string
	Name        string
}

// InboundBody is the `body` payload of a websocket post notification.
type InboundBody struct {
	ID           string
	GroupID      string
	CreatorID    string
	CreationTime time.Time
	Text         string
	Attachments  []Attachment
	Mentions     []Mention
	EventType    string
}

// InboundEvent is a raw websocket notification, tagged with the path of
// the subscription filter that produced it.
type InboundEvent struct {
	EventPath string
	Body      InboundBody
}

// Envelope is the normalized input handed from the inbound pipeline to the
// agent runtime. Field names mirror spec.md §3 verbatim.
type Envelope struct {
	Body                string
	RawBody             string
	CommandBody         string
	From                string
	To                  string
	SessionKey          string
	AccountID           string
	ChatType            PeerKind
	ConversationLabel   string
	SenderID            string
	WasMentioned        bool
	CommandAuthorized   bool
	Provider            string
	MessageSid          string
	MediaPath           string
	MediaType           string
	GroupSpace          string
	GroupSubject        string
	GroupSystemPrompt   string
	OriginatingChannel  string
	OriginatingTo       string
	OriginatingFrom     string
}

// ReplyPayload is one unit of outbound content produced by the agent
// runtime's reply dispatcher.
type ReplyPayload struct {
	Text      string
	MediaURLs []string
}

// Status is delivered to the optional status sink on every change to the
// account's liveness signals (§4.9).
type Status struct {
	AccountID       string
	LastInboundAt   time.Time
	LastOutboundAt  time.Time
	TotalReconnects int
	LastReconnectAt time.Time
	State           string
}
