package subscription

import (
	"encoding/json"

	"github.com/openclaw/ringcentral-bridge/internal/rctypes"
)

// wireNotification is the permissive shape of a websocket notification
// message. The platform multiplexes subscription acks, pings, and actual
// post/group events over the same frame; only the ones whose body carries
// an id are turned into an InboundEvent.
type wireNotification struct {
	EventPath string          `json:"event"`
	Body      json.RawMessage `json:"body"`
}

type wireMention struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type wireAttachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ContentURI  string `json:"contentUri"`
	ContentType string `json:"contentType"`
	Name        string `json:"name"`
}

type wirePostBody struct {
	ID           string           `json:"id"`
	GroupID      string           `json:"groupId"`
	CreatorID    string           `json:"creatorId"`
	Text         string           `json:"text"`
	EventType    string           `json:"eventType"`
	Mentions     []wireMention    `json:"mentions"`
	Attachments  []wireAttachment `json:"attachments"`
}

// parseEvent decodes one raw websocket frame into an InboundEvent. It
// returns ok=false for frames with no body or a body without an id
// (subscription acks, pings). Group-event notifications that carry an id
// are returned like post events; the pipeline's event-type stage drops
// them.
func parseEvent(raw json.RawMessage) (rctypes.InboundEvent, bool) {
	var n wireNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return rctypes.InboundEvent{}, false
	}
	if len(n.Body) == 0 {
		return rctypes.InboundEvent{}, false
	}

	var wb wirePostBody
	if err := json.Unmarshal(n.Body, &wb); err != nil {
		return rctypes.InboundEvent{}, false
	}
	if wb.ID == "" {
		return rctypes.InboundEvent{}, false
	}

	mentions := make([]rctypes.Mention, 0, len(wb.Mentions))
	for _, m := range wb.Mentions {
		mentions = append(mentions, rctypes.Mention{ID: m.ID, Type: m.Type, Name: m.Name})
	}
	attachments := make([]rctypes.Attachment, 0, len(wb.Attachments))
	for _, a := range wb.Attachments {
		attachments = append(attachments, rctypes.Attachment{
			ID:          a.ID,
			Type:        a.Type,
			ContentURI:  a.ContentURI,
			ContentType: a.ContentType,
			Name:        a.Name,
		})
	}

	return rctypes.InboundEvent{
		EventPath: n.EventPath,
		Body: rctypes.InboundBody{
			ID:          wb.ID,
			GroupID:     wb.GroupID,
			CreatorID:   wb.CreatorID,
			Text:        wb.Text,
			EventType:   wb.EventType,
			Mentions:    mentions,
			Attachments: attachments,
		},
	}, true
}
