package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/openclaw/ringcentral-bridge/internal/rcerrors"
)

type uploadFileResponse struct {
	ID string `json:"id"`
}

// UploadAttachment implements `{TM}/chats/{chatId}/files` (multipart
// upload), used by Outbound Delivery's media branch (§4.5).
func (c *Client) UploadAttachment(ctx context.Context, chatID, filename, contentType string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("attachment", filename)
	if err != nil {
		return "", fmt.Errorf("building multipart part: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("writing multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}

	resp, err := c.do(ctx, "POST", chatPath(chatID, "/files"), &body, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", rcerrors.Normalize(resp.StatusCode, flattenHeader(resp.Header), c.accountID, respBody)
	}

	var parsed uploadFileResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	return parsed.ID, nil
}
