// Package server defines the framed event vocabulary exchanged with chat
// clients and the payload types carried by each event.
package server

import (
	"encoding/json"
	"fmt"
)

// Inbound event names accepted from clients.
const (
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "send-message"
	EventChatChange  = "chat-onChange"
)

// Outbound event names emitted to clients.
const (
	EventUpdateMessages    = "updateMessages"
	EventChatChangeReceive = "chat-onChangeReceive"
)

// Envelope is the wire framing for every event in both directions:
// a tagged JSON object carrying the event name and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PayperviewID identifies a pay-per-view session. Clients send it as either
// a JSON number or a JSON string depending on the frontend version, so it
// normalizes both forms to the string representation.
type PayperviewID string

// UnmarshalJSON accepts both quoted and bare numeric identifiers.
func (id *PayperviewID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = PayperviewID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = PayperviewID(n.String())
	return nil
}

func (id PayperviewID) String() string {
	return string(id)
}

// RoomKey derives the broadcast room key for this session.
func (id PayperviewID) RoomKey() string {
	return "room-" + string(id)
}

// JoinRoomPayload is the payload of a joinRoom event.
type JoinRoomPayload struct {
	PayperviewID PayperviewID `json:"payperviewId" validate:"required"`
	Token        string       `json:"token"`
}

// SendMessagePayload is the payload of a send-message event.
type SendMessagePayload struct {
	PayperviewID PayperviewID `json:"payperviewId" validate:"required"`
	Message      string       `json:"message"`
	Token        string       `json:"token"`
}

// ChatChangePayload is the payload of a chat-onChange typing indicator.
type ChatChangePayload struct {
	PayperviewID PayperviewID `json:"payperviewId" validate:"required"`
	OnChange     bool         `json:"onChange"`
	UserID       string       `json:"userId"`
}

// UpdateMessagesData is the payload broadcast with updateMessages events.
// Data carries the backend response verbatim; FirstRender distinguishes the
// initial history load on join from incremental refreshes.
type UpdateMessagesData struct {
	Data        json.RawMessage `json:"data"`
	FirstRender bool            `json:"firstRender"`
}

// ChatChangeReceiveData is the payload relayed with chat-onChangeReceive.
type ChatChangeReceiveData struct {
	OnChange bool   `json:"onChange"`
	UserID   string `json:"userId"`
}

// NewEvent frames an outbound event into its wire envelope.
func NewEvent(name string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Data: payload})
}
