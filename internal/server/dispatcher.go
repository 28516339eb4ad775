// Package server routes inbound client events to their handlers and turns
// handler results into outbound room broadcasts.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
)

// ErrorObserver is notified whenever an event handler suppresses a backend
// failure. The relay inherits fire-and-forget semantics from the original
// deployment: the originating client receives no error event. Deployments
// that want client-visible failures can hook in here without changing the
// registry or dispatcher contracts.
type ErrorObserver func(clientID, event string, err error)

// Dispatcher interprets framed inbound events, validates their payloads, and
// invokes the matching handler. It talks to the backend for the proxied
// operations and asks the Hub to fan out the results.
type Dispatcher struct {
	hub      *Hub
	backend  BackendClient
	validate *validator.Validate
	observer ErrorObserver
}

// NewDispatcher wires a dispatcher to the registry and backend client it
// operates on.
func NewDispatcher(hub *Hub, backend BackendClient) *Dispatcher {
	return &Dispatcher{
		hub:      hub,
		backend:  backend,
		validate: validator.New(),
		observer: func(string, string, error) {},
	}
}

// SetErrorObserver replaces the no-op observer invoked on suppressed backend
// failures. Passing nil restores the no-op.
func (d *Dispatcher) SetErrorObserver(observer ErrorObserver) {
	if observer == nil {
		observer = func(string, string, error) {}
	}
	d.observer = observer
}

// Dispatch decodes one inbound frame and routes it to the handler for its
// event name. Malformed frames, payloads failing validation, and unknown
// event names are logged and dropped.
func (d *Dispatcher) Dispatch(client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("Invalid event frame from %s: %v", client.addr, err)
		return
	}

	switch env.Event {
	case EventJoinRoom:
		eventsTotal.WithLabelValues(EventJoinRoom).Inc()
		d.handleJoinRoom(client, env.Data)
	case EventSendMessage:
		eventsTotal.WithLabelValues(EventSendMessage).Inc()
		d.handleSendMessage(client, env.Data)
	case EventChatChange:
		eventsTotal.WithLabelValues(EventChatChange).Inc()
		d.handleChatChange(client, env.Data)
	default:
		// Client-chosen names must not become label values; everything
		// unrecognized folds into a single series.
		eventsTotal.WithLabelValues(eventLabelUnknown).Inc()
		log.Printf("Unknown event %q from %s; dropping", env.Event, client.addr)
	}
}

// handleJoinRoom registers the client into the session's room, then fetches
// the message history and delivers it to the joiner alone. The join itself
// succeeds even when the history fetch fails; the client simply receives no
// updateMessages event.
func (d *Dispatcher) handleJoinRoom(client *Client, data json.RawMessage) {
	var payload JoinRoomPayload
	if !d.decodePayload(client, EventJoinRoom, data, &payload) {
		return
	}

	roomKey := payload.PayperviewID.RoomKey()
	d.hub.Join(client, roomKey)

	messages, err := d.backend.FetchMessages(context.Background(), payload.PayperviewID, payload.Token)
	if err != nil {
		log.Printf("Error fetching messages for %s: %v", roomKey, err)
		d.observer(client.ID(), EventJoinRoom, err)
		return
	}

	event, err := NewEvent(EventUpdateMessages, UpdateMessagesData{Data: messages, FirstRender: true})
	if err != nil {
		log.Printf("Error framing updateMessages for %s: %v", roomKey, err)
		return
	}
	d.hub.SendTo(client, event)
}

// handleSendMessage appends the message to the backend store and, on
// success, broadcasts the backend's response to the whole room.
func (d *Dispatcher) handleSendMessage(client *Client, data json.RawMessage) {
	var payload SendMessagePayload
	if !d.decodePayload(client, EventSendMessage, data, &payload) {
		return
	}

	roomKey := payload.PayperviewID.RoomKey()
	response, err := d.backend.PostMessage(context.Background(), payload.PayperviewID, payload.Message, payload.Token)
	if err != nil {
		log.Printf("Error sending message for %s: %v", roomKey, err)
		d.observer(client.ID(), EventSendMessage, err)
		return
	}

	event, err := NewEvent(EventUpdateMessages, UpdateMessagesData{Data: response, FirstRender: false})
	if err != nil {
		log.Printf("Error framing updateMessages for %s: %v", roomKey, err)
		return
	}
	d.hub.Broadcast(roomKey, event)
}

// handleChatChange relays a typing indicator to the room. Pure fan-out, no
// backend call, best-effort delivery.
func (d *Dispatcher) handleChatChange(client *Client, data json.RawMessage) {
	var payload ChatChangePayload
	if !d.decodePayload(client, EventChatChange, data, &payload) {
		return
	}

	event, err := NewEvent(EventChatChangeReceive, ChatChangeReceiveData{OnChange: payload.OnChange, UserID: payload.UserID})
	if err != nil {
		log.Printf("Error framing chat-onChangeReceive: %v", err)
		return
	}
	d.hub.Broadcast(payload.PayperviewID.RoomKey(), event)
}

// NotifyNewMessages performs the fetch-and-broadcast sequence on behalf of
// the backend's out-of-band notification endpoint. Unlike the socket paths
// the failure is returned to the caller so it can surface as an HTTP status.
func (d *Dispatcher) NotifyNewMessages(ctx context.Context, payperviewID PayperviewID, token string) error {
	messages, err := d.backend.FetchMessages(ctx, payperviewID, token)
	if err != nil {
		return fmt.Errorf("fetch messages for %s: %w", payperviewID, err)
	}

	event, err := NewEvent(EventUpdateMessages, UpdateMessagesData{Data: messages, FirstRender: false})
	if err != nil {
		return fmt.Errorf("frame updateMessages: %w", err)
	}
	d.hub.Broadcast(payperviewID.RoomKey(), event)
	return nil
}

// decodePayload unmarshals and validates an event payload, logging and
// dropping the event on failure.
func (d *Dispatcher) decodePayload(client *Client, event string, data json.RawMessage, payload any) bool {
	if err := json.Unmarshal(data, payload); err != nil {
		log.Printf("Invalid %s payload from %s: %v", event, client.addr, err)
		return false
	}
	if err := d.validate.Struct(payload); err != nil {
		log.Printf("Rejected %s from %s: %v", event, client.addr, err)
		return false
	}
	return true
}
