// Package platform implements the Platform Client (spec.md §4.1, §6): a
// thin typed adapter over the RingCentral REST surface, covering chats,
// posts, attachments, persons, tasks/events/notes, and adaptive cards. It
// mirrors the teacher's internal/background.OpenAIClient shape (a small
// struct wrapping *http.Client + a session + a logger, one method per
// remote operation) rather than a generated client, since the teacher's
// own pack never reaches for an auto-generated REST SDK.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/rcauth"
	"github.com/openclaw/ringcentral-bridge/internal/rcerrors"
)

const teamMessagingPrefix = "/team-messaging/v1"

// Client is a per-account REST adapter.
type Client struct {
	session    *rcauth.Session
	httpClient *http.Client
	accountID  string
	logger     *logger.Logger
}

// New builds a Client bound to session and accountID, used for error
// normalization and log tagging only.
func New(session *rcauth.Session, accountID string, log *logger.Logger) *Client {
	return &Client{
		session: session,
		httpClient: &http.Client{
			Timeout: 45 * time.Second,
		},
		accountID: accountID,
		logger:    log.WithComponent("platform"),
	}
}

// doJSON issues an authenticated request, encoding body as JSON if
// non-nil, and decodes a JSON response into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	resp, err := c.do(ctx, method, path, reader, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return rcerrors.Normalize(resp.StatusCode, flattenHeader(resp.Header), c.accountID, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// do performs the authenticated round trip and returns the raw response
// for callers (like download.go) that need to inspect headers/stream the
// body themselves.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.session.BearerToken(ctx)
	if err != nil {
		return nil, err
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = strings.TrimRight(c.session.Server(), "/") + path
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[strings.ToLower(k)] = h.Get(k)
	}
	return out
}

func chatPath(chatID string, suffix string) string {
	return teamMessagingPrefix + "/chats/" + chatID + suffix
}
