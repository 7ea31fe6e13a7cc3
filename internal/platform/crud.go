package platform

import "context"

// The operations below are a thin CRUD veneer over tasks/events/notes and
// adaptive cards (spec.md §4.1, §4.9): they participate in C1 as
// additional post types but never the inbound pipeline itself.

type crudRecord struct {
	ID string `json:"id"`
}

// CreateTask implements `{TM}/chats/{chatId}/tasks` (POST).
func (c *Client) CreateTask(ctx context.Context, chatID string, payload interface{}) (string, error) {
	var resp crudRecord
	if err := c.doJSON(ctx, "POST", chatPath(chatID, "/tasks"), payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateTask implements `{TM}/tasks/{taskId}` (PATCH).
func (c *Client) UpdateTask(ctx context.Context, taskID string, payload interface{}) error {
	return c.doJSON(ctx, "PATCH", teamMessagingPrefix+"/tasks/"+taskID, payload, nil)
}

// CompleteTask implements `{TM}/tasks/{taskId}/complete` (POST).
func (c *Client) CompleteTask(ctx context.Context, taskID string) error {
	return c.doJSON(ctx, "POST", teamMessagingPrefix+"/tasks/"+taskID+"/complete", nil, nil)
}

// DeleteTask implements `{TM}/tasks/{taskId}` (DELETE).
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.doJSON(ctx, "DELETE", teamMessagingPrefix+"/tasks/"+taskID, nil, nil)
}

// CreateEvent implements `{TM}/chats/{chatId}/events` (POST).
func (c *Client) CreateEvent(ctx context.Context, chatID string, payload interface{}) (string, error) {
	var resp crudRecord
	if err := c.doJSON(ctx, "POST", chatPath(chatID, "/events"), payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// DeleteEvent implements `{TM}/events/{eventId}` (DELETE).
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	return c.doJSON(ctx, "DELETE", teamMessagingPrefix+"/events/"+eventID, nil, nil)
}

// CreateNote implements `{TM}/chats/{chatId}/notes` (POST).
func (c *Client) CreateNote(ctx context.Context, chatID string, payload interface{}) (string, error) {
	var resp crudRecord
	if err := c.doJSON(ctx, "POST", chatPath(chatID, "/notes"), payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateNote implements `{TM}/notes/{noteId}` (PATCH).
func (c *Client) UpdateNote(ctx context.Context, noteID string, payload interface{}) error {
	return c.doJSON(ctx, "PATCH", teamMessagingPrefix+"/notes/"+noteID, payload, nil)
}

// DeleteNote implements `{TM}/notes/{noteId}` (DELETE).
func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	return c.doJSON(ctx, "DELETE", teamMessagingPrefix+"/notes/"+noteID, nil, nil)
}

// CreateAdaptiveCard implements `{TM}/chats/{chatId}/adaptive-cards` (POST).
func (c *Client) CreateAdaptiveCard(ctx context.Context, chatID string, payload interface{}) (string, error) {
	var resp crudRecord
	if err := c.doJSON(ctx, "POST", chatPath(chatID, "/adaptive-cards"), payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateAdaptiveCard implements `{TM}/adaptive-cards/{id}` (PATCH).
func (c *Client) UpdateAdaptiveCard(ctx context.Context, cardID string, payload interface{}) error {
	return c.doJSON(ctx, "PATCH", teamMessagingPrefix+"/adaptive-cards/"+cardID, payload, nil)
}

// FavoriteChat implements chat favoriting (POST {TM}/chats/{chatId}/favorite).
func (c *Client) FavoriteChat(ctx context.Context, chatID string) error {
	return c.doJSON(ctx, "POST", chatPath(chatID, "/favorite"), nil, nil)
}

// AddTeamMembers implements team membership management.
func (c *Client) AddTeamMembers(ctx context.Context, teamID string, memberIDs []string) error {
	payload := struct {
		Members []string `json:"members"`
	}{Members: memberIDs}
	return c.doJSON(ctx, "POST", chatPath(teamID, "/members/add"), payload, nil)
}

// RemoveTeamMembers implements team membership management.
func (c *Client) RemoveTeamMembers(ctx context.Context, teamID string, memberIDs []string) error {
	payload := struct {
		Members []string `json:"members"`
	}{Members: memberIDs}
	return c.doJSON(ctx, "POST", chatPath(teamID, "/members/remove"), payload, nil)
}

// ArchiveTeam implements team archival.
func (c *Client) ArchiveTeam(ctx context.Context, teamID string) error {
	return c.doJSON(ctx, "POST", chatPath(teamID, "/archive"), nil, nil)
}
