package platform

import (
	"context"
	"strings"
)

// WebSocketEventFilters is the fixed filter set the bridge subscribes to
// (spec.md §6): platform events for posts and groups.
var WebSocketEventFilters = []string{
	"/restapi/v1.0/glip/posts",
	"/restapi/v1.0/glip/groups",
}

type createSubscriptionRequest struct {
	EventFilters []string `json:"eventFilters"`
	DeliveryMode struct {
		TransportType string `json:"transportType"`
		Address       string `json:"address"`
	} `json:"deliveryMode"`
}

type subscriptionResponse struct {
	ID string `json:"id"`
}

// CreateWebSocketSubscription implements `POST /restapi/v1.0/subscription`,
// binding the fixed event filter set to an already-established websocket
// connection identified by connectionID.
func (c *Client) CreateWebSocketSubscription(ctx context.Context, connectionID string) (string, error) {
	req := createSubscriptionRequest{EventFilters: WebSocketEventFilters}
	req.DeliveryMode.TransportType = "WebSocket"
	req.DeliveryMode.Address = connectionID

	var resp subscriptionResponse
	if err := c.doJSON(ctx, "POST", "/restapi/v1.0/subscription", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// DeleteSubscription implements `DELETE /restapi/v1.0/subscription/{id}`,
// revoking the platform-side push subscription on cleanup (§4.9).
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	return c.doJSON(ctx, "DELETE", "/restapi/v1.0/subscription/"+subscriptionID, nil, nil)
}

// WebSocketURL derives the wss:// endpoint from the account's REST server.
func (c *Client) WebSocketURL() string {
	server := c.session.Server()
	server = strings.TrimPrefix(server, "https://")
	server = strings.TrimPrefix(server, "http://")
	server = strings.TrimRight(server, "/")
	return "wss://" + server + "/ws"
}
