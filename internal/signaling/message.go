package signaling

import "encoding/json"

// Envelope is the JSON frame exchanged with the websocket relay.
type Envelope struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	PeerID  string          `json:"peer_id,omitempty"`
	From    string          `json:"from,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoin      = "join"
	MessageTypeBroadcast = "broadcast"

	MessageTypePresenceJoin  = "presence_join"
	MessageTypePresenceLeave = "presence_leave"
	MessageTypePresenceSync  = "presence_sync"
	MessageTypeError         = "error"
)

// Broadcast event names.
const (
	EventSignal = "signal"
	EventAdmin  = "admin"
)

// PresenceInfo is the metadata a peer publishes when it joins a room.
type PresenceInfo struct {
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	env := &Envelope{Type: msgType}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env.Payload = raw
	return env, nil
}
