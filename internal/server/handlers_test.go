package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandlers(backend BackendClient) (*Handlers, *Hub) {
	hub := NewHub()
	dispatcher := NewDispatcher(hub, backend)
	return NewHandlers(NewConfig("http://backend.test"), hub, dispatcher), hub
}

func postNotify(h *Handlers, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notify-new-messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.NotifyNewMessages(rr, req)
	return rr
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["message"]
}

func TestNotifyNewMessagesRequiresPayperviewID(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty object", body: `{}`},
		{name: "only token", body: `{"token":"t"}`},
		{name: "empty string id", body: `{"payperviewId":"","token":"t"}`},
		{name: "invalid json", body: `{`},
	}

	h, _ := newTestHandlers(&fakeBackend{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postNotify(h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "payperviewId is required", decodeMessage(t, rr))
		})
	}
}

func TestNotifyNewMessagesBroadcastsAndReportsSuccess(t *testing.T) {
	backend := &fakeBackend{fetchResponse: json.RawMessage(`[{"id":9}]`)}
	h, hub := newTestHandlers(backend)

	member := newTestClient(hub)
	hub.Join(member, "room-42")

	rr := postNotify(h, `{"payperviewId":42,"token":"t"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Data updated successfully.", decodeMessage(t, rr))
	assert.Equal(t, "t", backend.lastToken)

	env := receiveEvent(t, member)
	assert.Equal(t, EventUpdateMessages, env.Event)
	var update UpdateMessagesData
	require.NoError(t, json.Unmarshal(env.Data, &update))
	assert.JSONEq(t, `[{"id":9}]`, string(update.Data))
	assert.False(t, update.FirstRender)
}

func TestNotifyNewMessagesReportsBackendFailure(t *testing.T) {
	h, _ := newTestHandlers(&fakeBackend{fetchErr: ErrUpstreamUnavailable})

	rr := postNotify(h, `{"payperviewId":42,"token":"t"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to fetch messages.", decodeMessage(t, rr))
}

func TestNotifyNewMessagesRejectsNonPost(t *testing.T) {
	h, _ := newTestHandlers(&fakeBackend{})

	req := httptest.NewRequest(http.MethodGet, "/notify-new-messages", http.NoBody)
	rr := httptest.NewRecorder()
	h.NotifyNewMessages(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthHandler(t *testing.T) {
	h, _ := newTestHandlers(&fakeBackend{})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rr := httptest.NewRecorder()
	h.Health(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "Chat relay server is running.", decodeMessage(t, rr))
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	h, _ := newTestHandlers(&fakeBackend{})

	req := httptest.NewRequest(http.MethodPost, "/ws", http.NoBody)
	rr := httptest.NewRecorder()
	h.WebSocket(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
