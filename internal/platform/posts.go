package platform

import (
	"context"
)

type createPostRequest struct {
	Text          string   `json:"text,omitempty"`
	AttachmentIDs []string `json:"attachments,omitempty"`
}

type postDTO struct {
	ID string `json:"id"`
}

// CreatePost implements `{TM}/chats/{chatId}/posts` (POST): create a post,
// optionally carrying an uploaded attachment id.
func (c *Client) CreatePost(ctx context.Context, chatID, text string, attachmentID string) (string, error) {
	req := createPostRequest{Text: text}
	if attachmentID != "" {
		req.AttachmentIDs = []string{attachmentID}
	}
	var resp postDTO
	if err := c.doJSON(ctx, "POST", chatPath(chatID, "/posts"), req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type updatePostRequest struct {
	Text string `json:"text"`
}

// UpdatePost implements `{TM}/chats/{chatId}/posts/{postId}` (PATCH).
func (c *Client) UpdatePost(ctx context.Context, chatID, postID, text string) error {
	return c.doJSON(ctx, "PATCH", chatPath(chatID, "/posts/"+postID), updatePostRequest{Text: text}, nil)
}

// DeletePost implements `{TM}/chats/{chatId}/posts/{postId}` (DELETE).
func (c *Client) DeletePost(ctx context.Context, chatID, postID string) error {
	return c.doJSON(ctx, "DELETE", chatPath(chatID, "/posts/"+postID), nil, nil)
}

type listPostsResponse struct {
	Records []struct {
		ID string `json:"id"`
	} `json:"records"`
}

// ListPosts implements `{TM}/chats/{chatId}/posts` (GET).
func (c *Client) ListPosts(ctx context.Context, chatID string) ([]string, error) {
	var resp listPostsResponse
	if err := c.doJSON(ctx, "GET", chatPath(chatID, "/posts"), nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Records))
	for _, r := range resp.Records {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
