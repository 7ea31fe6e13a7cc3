// Package outbound implements Outbound Delivery (spec.md §4.5): turning
// one reply payload from the agent runtime into one or more platform
// posts, with echo-suppression bookkeeping and per-chunk failure
// isolation. Grounded on the teacher's pkg/telegram send-with-chunking
// helpers for the "wrap, chunk, send-in-order, tolerate per-chunk
// failure" shape.
package outbound

import (
	"context"
	"fmt"

	"github.com/openclaw/ringcentral-bridge/internal/ledger"
	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
	"github.com/openclaw/ringcentral-bridge/internal/runtime"
)

const fallbackCaption = "Sent attachment(s)."

// postClient is the narrow platform-client surface Outbound Delivery
// needs.
type postClient interface {
	CreatePost(ctx context.Context, chatID, text, attachmentID string) (string, error)
	UpdatePost(ctx context.Context, chatID, postID, text string) error
	DeletePost(ctx context.Context, chatID, postID string) error
	UploadAttachment(ctx context.Context, chatID, filename, contentType string, data []byte) (string, error)
}

// OutboundNotifier is notified once per produced post, so the Subscription
// Manager can stamp lastOutboundAt (spec.md §4.9).
type OutboundNotifier interface {
	RecordOutbound()
}

// Deliverer implements `deliver(payload, typingPostId?)` for one account.
type Deliverer struct {
	client   postClient
	ledger   *ledger.Ledger
	media    runtime.MediaToolkit
	chunker  runtime.TextChunker
	notifier OutboundNotifier
	log      *logger.Logger
	account  *rcconfig.AccountConfig
}

// New constructs a Deliverer for one account.
func New(client postClient, ledg *ledger.Ledger, media runtime.MediaToolkit, chunker runtime.TextChunker, notifier OutboundNotifier, log *logger.Logger, account *rcconfig.AccountConfig) *Deliverer {
	return &Deliverer{
		client:   client,
		ledger:   ledg,
		media:    media,
		chunker:  chunker,
		notifier: notifier,
		log:      log.WithComponent("outbound"),
		account:  account,
	}
}

// Deliver implements spec.md §4.5: the media branch when
// payload.MediaURLs is non-empty (payload.Text then travels only as the
// first attachment's caption), otherwise the text branch (if payload.Text
// is non-empty). typingPostID, when non-empty, is consumed here: deleted
// (media branch) or edited into the first chunk (text branch).
func (d *Deliverer) Deliver(ctx context.Context, chatID string, payload rctypes.ReplyPayload, typingPostID string) error {
	if len(payload.MediaURLs) > 0 {
		return d.deliverMedia(ctx, chatID, payload, typingPostID)
	}
	return d.deliverText(ctx, chatID, payload.Text, typingPostID)
}

func (d *Deliverer) deliverMedia(ctx context.Context, chatID string, payload rctypes.ReplyPayload, typingPostID string) error {
	captionSuppressed := false

	if typingPostID != "" {
		if err := d.client.DeletePost(ctx, chatID, typingPostID); err != nil {
			caption := fallbackCaption
			if payload.Text != "" {
				caption = payload.Text
			}
			if editErr := d.client.UpdatePost(ctx, chatID, typingPostID, caption); editErr != nil {
				d.log.Warn("failed to delete or fall back typing post", "chatId", chatID, "postId", typingPostID, "error", editErr)
			} else {
				captionSuppressed = true
			}
		}
	}

	maxBytes := int64(d.account.MediaMaxMb) << 20

	for i, url := range payload.MediaURLs {
		data, contentType, err := d.media.FetchRemote(ctx, url, maxBytes)
		if err != nil {
			d.log.LogError(ctx, err, "failed to fetch outbound media", "url", url)
			continue
		}

		filename := fmt.Sprintf("attachment-%d", i)
		attachmentID, err := d.client.UploadAttachment(ctx, chatID, filename, contentType, data)
		if err != nil {
			d.log.LogError(ctx, err, "failed to upload outbound media", "url", url)
			continue
		}

		caption := ""
		if i == 0 && !captionSuppressed {
			caption = payload.Text
		}

		postID, err := d.client.CreatePost(ctx, chatID, caption, attachmentID)
		if err != nil {
			d.log.LogError(ctx, err, "failed to post outbound media", "url", url)
			continue
		}

		d.ledger.Add(postID)
		d.notifyOutbound()
	}
	return nil
}

func (d *Deliverer) deliverText(ctx context.Context, chatID, text string, typingPostID string) error {
	if text == "" {
		return nil
	}

	wrapped := fmt.Sprintf("> --------answer--------\n%s\n> ---------end----------", text)
	chunks := d.chunker.Chunk(wrapped, d.account.TextChunkLimit, string(d.account.ChunkMode))

	for i, chunk := range chunks {
		if i == 0 && typingPostID != "" {
			if err := d.client.UpdatePost(ctx, chatID, typingPostID, chunk); err != nil {
				d.log.LogError(ctx, err, "failed to edit typing post with first reply chunk", "chatId", chatID)
				continue
			}
			d.ledger.Add(typingPostID)
			d.notifyOutbound()
			continue
		}

		postID, err := d.client.CreatePost(ctx, chatID, chunk, "")
		if err != nil {
			d.log.LogError(ctx, err, "failed to send reply chunk", "chatId", chatID, "chunkIndex", i)
			continue
		}
		d.ledger.Add(postID)
		d.notifyOutbound()
	}
	return nil
}

func (d *Deliverer) notifyOutbound() {
	if d.notifier != nil {
		d.notifier.RecordOutbound()
	}
}
