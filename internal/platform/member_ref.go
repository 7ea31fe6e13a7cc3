package platform

import "encoding/json"

// memberRef accepts a chat member entry in either shape the platform is
// known to emit: a bare string id, or an object carrying {"id": "..."}
// (spec.md §4.6: "normalize member ids (accept either string or {id})").
type memberRef struct {
	id string
}

func (m *memberRef) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		m.id = asString
		return nil
	}

	var asObject struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return err
	}
	m.id = asObject.ID
	return nil
}

func (m memberRef) ID() string {
	return m.id
}
