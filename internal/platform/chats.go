package platform

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
)

type chatDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Members     []memberRef `json:"members"`
	Description string      `json:"description"`
}

type listChatsResponse struct {
	Records []chatDTO `json:"records"`
}

func (d chatDTO) toRecord() rctypes.ChatRecord {
	members := make([]string, 0, len(d.Members))
	for _, m := range d.Members {
		if id := m.ID(); id != "" {
			members = append(members, id)
		}
	}
	return rctypes.ChatRecord{
		ID:          d.ID,
		Name:        d.Name,
		Type:        rctypes.ChatType(d.Type),
		Members:     members,
		Description: d.Description,
	}
}

// ListChats implements `{TM}/chats?type=...` (GET).
func (c *Client) ListChats(ctx context.Context, chatType string, limit int) ([]rctypes.ChatRecord, error) {
	if limit <= 0 {
		limit = 250
	}
	path := fmt.Sprintf("%s/chats?type=%s&recordCount=%s", teamMessagingPrefix, chatType, strconv.Itoa(limit))

	var resp listChatsResponse
	if err := c.doJSON(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]rctypes.ChatRecord, 0, len(resp.Records))
	for _, d := range resp.Records {
		records = append(records, d.toRecord())
	}
	return records, nil
}

// GetChat implements `{TM}/chats/{chatId}` (GET).
func (c *Client) GetChat(ctx context.Context, chatID string) (*rctypes.ChatRecord, error) {
	var d chatDTO
	if err := c.doJSON(ctx, "GET", chatPath(chatID, ""), nil, &d); err != nil {
		return nil, err
	}
	rec := d.toRecord()
	return &rec, nil
}

type currentExtensionResponse struct {
	ID string `json:"id"`
}

// CurrentExtension implements `GET /restapi/v1.0/account/~/extension/~`,
// used by the Subscription Manager to resolve ownerId (§4.3).
func (c *Client) CurrentExtension(ctx context.Context) (string, error) {
	var resp currentExtensionResponse
	if err := c.doJSON(ctx, "GET", "/restapi/v1.0/account/~/extension/~", nil, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type personDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// GetPerson implements `{TM}/persons/{userId}` (GET), used by the chat
// cache's peer-name resolver (§4.6).
func (c *Client) GetPerson(ctx context.Context, userID string) (name string, err error) {
	var d personDTO
	if err := c.doJSON(ctx, "GET", teamMessagingPrefix+"/persons/"+userID, nil, &d); err != nil {
		return "", err
	}
	full := d.FirstName
	if d.LastName != "" {
		if full != "" {
			full += " "
		}
		full += d.LastName
	}
	if full == "" {
		return userID, nil
	}
	return full, nil
}
