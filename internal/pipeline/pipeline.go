// Package pipeline implements the Inbound Pipeline (spec.md §4.4): the
// nineteen-stage ordered filter/classifier/router that turns a raw
// websocket notification into a dispatched agent-runtime call, or a
// silent (debug-logged) drop. Grounded on the teacher's internal/routing
// package for the stage-by-stage early-return shape, generalized from its
// single linear filter chain to the spec's richer policy surface.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openclaw/ringcentral-bridge/internal/grouplog"
	"github.com/openclaw/ringcentral-bridge/internal/ledger"
	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/outbound"
	"github.com/openclaw/ringcentral-bridge/internal/platform"
	"github.com/openclaw/ringcentral-bridge/internal/policy"
	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
	"github.com/openclaw/ringcentral-bridge/internal/runtime"
)

// platformClient is the narrow platform-client surface the pipeline
// needs.
type platformClient interface {
	GetChat(ctx context.Context, chatID string) (*rctypes.ChatRecord, error)
	DownloadAttachment(ctx context.Context, contentURI string, maxBytes int64) (*platform.DownloadResult, error)
	CreatePost(ctx context.Context, chatID, text, attachmentID string) (string, error)
}

// Pipeline evaluates inbound events for one account.
type Pipeline struct {
	account   *rcconfig.AccountConfig
	client    platformClient
	ledger    *ledger.Ledger
	groupLog  *grouplog.Log
	collab    runtime.Collaborators
	deliverer *outbound.Deliverer
	ownerID   func() string
	log       *logger.Logger
}

// New constructs a Pipeline for one account.
func New(account *rcconfig.AccountConfig, client platformClient, ledg *ledger.Ledger, groupLog *grouplog.Log, collab runtime.Collaborators, deliverer *outbound.Deliverer, ownerID func() string, log *logger.Logger) *Pipeline {
	return &Pipeline{
		account:   account,
		client:    client,
		ledger:    ledg,
		groupLog:  groupLog,
		collab:    collab,
		deliverer: deliverer,
		ownerID:   ownerID,
		log:       log.WithComponent("pipeline"),
	}
}

// weakLabels are fallback conversation labels stage 17 rewrites once a
// real chat name becomes known.
var weakLabelPrefixes = []string{"chat:", "ringcentral:group:"}

// Handle runs the full nineteen-stage pipeline for one inbound event.
// A nil return means either the event was dispatched or silently dropped
// (logged at debug); a non-nil return means a downstream call failed.
func (p *Pipeline) Handle(ctx context.Context, event rctypes.InboundEvent) error {
	// Tag ctx with the account/operation/chat identifiers the Logger's
	// WithContext pulls out for every downstream LogError call.
	ctx = logger.WithAccountID(ctx, p.account.AccountID)
	ctx = logger.WithOperation(ctx, "inbound_pipeline")

	// Stage 1: event-type filter.
	if !isPostEvent(event) {
		p.debugDrop("not a post event", "eventPath", event.EventPath)
		return nil
	}

	body := event.Body
	chatID := body.GroupID
	ctx = logger.WithChatID(ctx, chatID)

	// Stage 2: presence check.
	rawBody := body.Text
	if rawBody == "" && len(body.Attachments) > 0 {
		rawBody = "<media:attachment>"
	}
	if chatID == "" || rawBody == "" {
		p.debugDrop("missing chatId or rawBody")
		return nil
	}

	// Stage 3: self-echo by id.
	if p.ledger.Contains(body.ID) {
		p.debugDrop("self-echo", "messageId", body.ID)
		return nil
	}

	// Stage 4: loop-guard marker detection.
	if policy.DetectLoopGuardMarker(rawBody) != policy.LoopGuardNone {
		p.debugDrop("loop-guard marker matched")
		return nil
	}

	// Stage 5: pure attachment placeholder.
	if policy.IsPureAttachmentPlaceholder(rawBody) {
		p.debugDrop("pure attachment placeholder")
		return nil
	}

	senderID := body.CreatorID
	owner := p.ownerID()

	// Stage 6: selfOnly gate.
	if p.account.SelfOnly && owner != "" && senderID != owner {
		p.debugDrop("selfOnly gate rejected sender", "senderId", senderID)
		return nil
	}

	// Stage 7: chat info lookup.
	chat, err := p.client.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("pipeline: get chat %s: %w", chatID, err)
	}
	isDM := chat.Type.IsDM()
	isGroup := !isDM
	peerKind := rctypes.PeerKindDM
	switch {
	case chat.Type == rctypes.ChatTypeTeam:
		peerKind = rctypes.PeerKindChannel
	case isGroup:
		peerKind = rctypes.PeerKindGroup
	}

	// Stage 8: configured-group filter.
	if isGroup && len(p.account.Groups) > 0 {
		if !groupIsConfigured(p.account, chatID, chat.Name) {
			p.debugDrop("chat not in configured group set", "chatId", chatID)
			return nil
		}
	}

	// Stage 9: routing.
	peerID := chatID
	if isDM {
		peerID = otherParticipant(chat.Members, owner, senderID, chatID)
	}
	sessionKey := p.collab.Sessions.SessionKey("ringcentral", p.account.AccountID, runtime.Peer{Kind: peerKind, ID: peerID})

	// Stage 10: selfOnly + non-Personal drop.
	if p.account.SelfOnly && chat.Type != rctypes.ChatTypePersonal {
		p.debugDrop("selfOnly mode only accepts Personal chat")
		return nil
	}

	override, hasOverride := groupOverrideFor(p.account, chatID, chat.Name)
	effectiveAllowFrom := append(append([]string{}, p.account.DMAllowFrom...), p.collab.Pairing.AllowFrom(p.account.AccountID)...)

	if isGroup {
		// Stage 11: group policy.
		if drop := p.evaluateGroupPolicy(chatID, chat.Name, senderID, override, hasOverride); drop {
			return nil
		}
		if err := p.groupLog.Append(chatID, chat.Name, senderID, rawBody, time.Now()); err != nil {
			p.log.Warn("failed to append group chat log", "chatId", chatID, "error", err)
		}
		p.recordGroupLabel(sessionKey, chatID, chat.Name, chat.Members)
	} else {
		// Stage 12: DM policy.
		if drop := p.evaluateDMPolicy(senderID, effectiveAllowFrom); drop {
			return nil
		}
	}

	// Stage 13: command authorization.
	isCommand := p.collab.Commands.IsCommand(rawBody)
	isControlCommand := isCommand && p.collab.Commands.IsControlCommand(rawBody)
	commandAuthorized := true
	if isCommand {
		if isGroup {
			users := override.Users
			if len(users) > 0 {
				commandAuthorized = policy.IsSenderAllowed(senderID, users)
			}
		} else {
			commandAuthorized = policy.IsSenderAllowed(senderID, effectiveAllowFrom)
		}
		if isControlCommand && !commandAuthorized && isGroup {
			p.debugDrop("unauthorized control command in group", "senderId", senderID)
			return nil
		}
	}

	// Stage 14: mention gating (groups only).
	wasMentioned := false
	hasAnyMention := len(body.Mentions) > 0
	if isGroup {
		requireMention := p.account.RequireMention
		if hasOverride && override.RequireMention != nil {
			requireMention = *override.RequireMention
		}
		for _, m := range body.Mentions {
			if m.ID == owner || (p.account.BotExtensionID != "" && m.ID == p.account.BotExtensionID) {
				wasMentioned = true
				break
			}
		}
		if p.collab.Mentions.ShouldSkip(requireMention, wasMentioned, hasAnyMention, isControlCommand, commandAuthorized) {
			p.debugDrop("mention gate rejected message", "chatId", chatID)
			return nil
		}
	}

	// Stage 15: attachment intake.
	mediaPath, mediaType := "", ""
	if len(body.Attachments) > 0 {
		att := body.Attachments[0]
		maxMb := p.account.MediaMaxMb
		if maxMb < 1 {
			maxMb = 1
		}
		result, err := p.client.DownloadAttachment(ctx, att.ContentURI, int64(maxMb)<<20)
		if err != nil {
			p.log.LogError(ctx, err, "attachment download failed", "chatId", chatID)
		} else {
			path, err := p.collab.Media.SaveInbound(ctx, p.account.AccountID, chatID, result.Buffer, result.ContentType, att.Name)
			if err != nil {
				p.log.LogError(ctx, err, "attachment save failed", "chatId", chatID)
			} else {
				mediaPath = path
				mediaType = result.ContentType
			}
		}
	}

	// Stage 16: envelope construction.
	envelope := p.buildEnvelope(chatID, senderID, rawBody, sessionKey, body.ID, peerKind, chat, isGroup, mediaPath, mediaType, commandAuthorized, wasMentioned, override, hasOverride)
	if isCommand {
		envelope.CommandBody = p.collab.Commands.CommandBody(rawBody)
	}

	// Stage 17: session-meta record (for DMs too, so later reconnects can
	// recover a human label even without a chat-name lookup).
	if !isGroup {
		p.collab.SessionMeta.Set(sessionKey, envelope.ConversationLabel)
	}

	// Stage 18: thinking post.
	botName := p.account.BotDisplayName()
	typingText := fmt.Sprintf("> \U0001F99E %s is thinking...", botName)
	typingPostID, err := p.client.CreatePost(ctx, chatID, typingText, "")
	if err != nil {
		p.log.LogError(ctx, err, "failed to post thinking placeholder", "chatId", chatID)
		typingPostID = ""
	} else {
		p.ledger.Add(typingPostID)
	}

	// Stage 19: dispatch.
	return p.collab.Dispatcher.Dispatch(ctx, envelope, typingPostID, func(ctx context.Context, payload rctypes.ReplyPayload, typingID string) error {
		return p.deliverer.Deliver(ctx, chatID, payload, typingID)
	})
}

func (p *Pipeline) debugDrop(reason string, args ...any) {
	p.log.Debug("dropping inbound event: "+reason, args...)
}

func isPostEvent(event rctypes.InboundEvent) bool {
	if strings.Contains(event.EventPath, "/glip/posts") || strings.Contains(event.EventPath, "/team-messaging") {
		return true
	}
	return event.Body.EventType == "PostAdded"
}

// groupIsConfigured implements stage 8: the chat must match a key of the
// Groups map by id, name, or lowercased name, or the map must carry a
// wildcard "*" entry.
func groupIsConfigured(account *rcconfig.AccountConfig, chatID, chatName string) bool {
	if _, ok := account.Groups["*"]; ok {
		return true
	}
	if _, ok := account.Groups[chatID]; ok {
		return true
	}
	if chatName != "" {
		if _, ok := account.Groups[chatName]; ok {
			return true
		}
		if _, ok := account.Groups[strings.ToLower(chatName)]; ok {
			return true
		}
	}
	return false
}

// groupOverrideFor resolves the GroupOverride entry (if any) governing
// chatID, matched the same way as groupIsConfigured.
func groupOverrideFor(account *rcconfig.AccountConfig, chatID, chatName string) (rcconfig.GroupOverride, bool) {
	if o, ok := account.Groups[chatID]; ok {
		return o, true
	}
	if chatName != "" {
		if o, ok := account.Groups[chatName]; ok {
			return o, true
		}
		if o, ok := account.Groups[strings.ToLower(chatName)]; ok {
			return o, true
		}
	}
	if o, ok := account.Groups["*"]; ok {
		return o, true
	}
	return rcconfig.GroupOverride{}, false
}

// evaluateGroupPolicy implements stage 11. It returns true when the event
// must be dropped.
func (p *Pipeline) evaluateGroupPolicy(chatID, chatName, senderID string, override rcconfig.GroupOverride, hasOverride bool) bool {
	switch p.account.GroupPolicy {
	case rcconfig.GroupPolicyDisabled:
		p.debugDrop("group policy disabled", "chatId", chatID)
		return true
	case rcconfig.GroupPolicyOpen:
		// falls through to per-entry checks below
	default: // allowlist
		if !hasOverride && !groupIsConfigured(p.account, chatID, chatName) {
			p.debugDrop("group not in allowlist", "chatId", chatID)
			return true
		}
	}

	if hasOverride {
		if override.Enabled != nil && !*override.Enabled {
			p.debugDrop("group entry disabled", "chatId", chatID)
			return true
		}
		if override.Allow != nil && !*override.Allow {
			p.debugDrop("group entry not allowed", "chatId", chatID)
			return true
		}
		if len(override.Users) > 0 && !policy.IsSenderAllowed(senderID, override.Users) {
			p.debugDrop("sender not in group user allow-list", "chatId", chatID, "senderId", senderID)
			return true
		}
	}
	return false
}

// evaluateDMPolicy implements stage 12. It returns true when the event
// must be dropped.
func (p *Pipeline) evaluateDMPolicy(senderID string, effectiveAllowFrom []string) bool {
	switch p.account.DMPolicy {
	case rcconfig.DMPolicyDisabled:
		p.debugDrop("dm policy disabled", "senderId", senderID)
		return true
	case rcconfig.DMPolicyOpen:
		return false
	default: // allowlist, pairing
		if !policy.IsSenderAllowed(senderID, effectiveAllowFrom) {
			p.debugDrop("sender not in dm allow-list", "senderId", senderID)
			return true
		}
	}
	return false
}

// otherParticipant derives the DM peer id (stage 9): the member that isn't
// ownerId, falling back to senderId (if distinct from owner), falling back
// to chatId.
func otherParticipant(members []string, owner, senderID, chatID string) string {
	if owner != "" {
		for _, m := range members {
			if m != owner {
				return m
			}
		}
	}
	if senderID != "" && senderID != owner {
		return senderID
	}
	return chatID
}

func (p *Pipeline) recordGroupLabel(sessionKey, chatID, chatName string, members []string) {
	label := chatName
	if label == "" {
		label = firstNamesLabel(members)
	}
	if label == "" {
		label = "chat:" + chatID
	}

	existing, ok := p.collab.SessionMeta.Get(sessionKey)
	if !ok || isWeakLabel(existing, chatID) {
		p.collab.SessionMeta.Set(sessionKey, label)
	}
}

func firstNamesLabel(members []string) string {
	n := len(members)
	if n > 3 {
		n = 3
	}
	if n == 0 {
		return ""
	}
	return strings.Join(members[:n], ", ")
}

// isWeakLabel implements stage 17's rewrite condition: chat:<id>,
// ringcentral:group:<id>, or bare <id>, optionally suffixed " id:<id>".
func isWeakLabel(label, chatID string) bool {
	trimmed := strings.TrimSuffix(label, " id:"+chatID)
	if trimmed == chatID {
		return true
	}
	for _, prefix := range weakLabelPrefixes {
		if trimmed == prefix+chatID {
			return true
		}
	}
	return false
}

func (p *Pipeline) buildEnvelope(chatID, senderID, rawBody, sessionKey, messageSid string, peerKind rctypes.PeerKind, chat *rctypes.ChatRecord, isGroup bool, mediaPath, mediaType string, commandAuthorized, wasMentioned bool, override rcconfig.GroupOverride, hasOverride bool) rctypes.Envelope {
	framed := fmt.Sprintf("[ringcentral] %s", rawBody)

	env := rctypes.Envelope{
		Body:              framed,
		RawBody:           rawBody,
		SessionKey:        sessionKey,
		AccountID:         p.account.AccountID,
		ChatType:          peerKind,
		SenderID:          senderID,
		WasMentioned:      wasMentioned,
		CommandAuthorized: commandAuthorized,
		Provider:          "ringcentral",
		MessageSid:        messageSid,
		MediaPath:         mediaPath,
		MediaType:         mediaType,
	}

	if isGroup {
		env.From = fmt.Sprintf("ringcentral:%s:%s", peerKind, chatID)
		env.To = env.From
		env.ConversationLabel = chat.Name
		env.GroupSpace = chatID
		env.GroupSubject = chat.Name
		if hasOverride {
			env.GroupSystemPrompt = override.SystemPrompt
		}
	} else {
		env.From = fmt.Sprintf("ringcentral:%s", senderID)
		env.To = fmt.Sprintf("ringcentral:%s", chatID)
		env.ConversationLabel = chat.Name
	}

	env.OriginatingChannel = "ringcentral"
	env.OriginatingTo = env.To
	env.OriginatingFrom = env.From
	return env
}

