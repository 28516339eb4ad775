// Package testhelpers provides common utilities for exercising the chat
// relay end to end: spinning up a relay instance backed by a fake upstream
// store, dialing WebSocket clients, and exchanging framed events.
package testhelpers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/virangaj/test-socket-chat-server/internal/server"
)

// FakeBackend is an in-process stand-in for the upstream message store. It
// records the credentials and bodies it receives so tests can assert the
// relay passes them through unchanged.
type FakeBackend struct {
	Server *httptest.Server

	mu            sync.Mutex
	messagesBody  string
	postBody      string
	failFetch     bool
	lastToken     string
	lastPostJSON  string
	fetchRequests int
}

// NewFakeBackend starts a fake upstream serving the given history payload
// for fetches and the given response payload for posted messages.
func NewFakeBackend(t *testing.T, messagesBody, postBody string) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{messagesBody: messagesBody, postBody: postBody}

	mux := http.NewServeMux()
	// Matches GET /ppv/{id}/messages and POST /ppv/{id}/message without the
	// method-and-wildcard mux patterns that require Go 1.22+.
	mux.HandleFunc("/ppv/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
			fb.mu.Lock()
			fb.lastToken = bearerToken(r)
			fb.fetchRequests++
			fail := fb.failFetch
			body := fb.messagesBody
			fb.mu.Unlock()

			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(body))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/message"):
			raw, _ := io.ReadAll(r.Body)

			fb.mu.Lock()
			fb.lastToken = bearerToken(r)
			fb.lastPostJSON = string(raw)
			body := fb.postBody
			fb.mu.Unlock()

			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	})

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Server.Close)
	return fb
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// SetFailFetch makes subsequent history fetches return HTTP 500.
func (fb *FakeBackend) SetFailFetch(fail bool) {
	fb.mu.Lock()
	fb.failFetch = fail
	fb.mu.Unlock()
}

// LastToken returns the bearer token seen on the most recent upstream call.
func (fb *FakeBackend) LastToken() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastToken
}

// LastPostBody returns the JSON body of the most recent posted message.
func (fb *FakeBackend) LastPostBody() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastPostJSON
}

// FetchCount returns how many history fetches the backend has served.
func (fb *FakeBackend) FetchCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.fetchRequests
}

// Relay bundles a running relay instance with its hub for test assertions.
type Relay struct {
	Server *httptest.Server
	Hub    *server.Hub
}

// StartRelay boots a complete relay (hub, dispatcher, HTTP surface) against
// the given backend URL and returns it running on an ephemeral port.
func StartRelay(t *testing.T, backendURL string) *Relay {
	t.Helper()

	cfg := server.NewConfig(backendURL)
	cfg.BackendTimeout = 2 * time.Second

	hub := server.NewHub()
	go hub.Run()

	backend := server.NewBackendClient(cfg.BackendServer, cfg.BackendTimeout)
	dispatcher := server.NewDispatcher(hub, backend)
	handlers := server.NewHandlers(cfg, hub, dispatcher)

	ts := httptest.NewServer(server.SetupRoutes(handlers))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return &Relay{Server: ts, Hub: hub}
}

// WebSocketURL converts the relay's HTTP base URL to its ws:// endpoint.
func (r *Relay) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(r.Server.URL, "http") + "/ws"
}

// ConnectWebSocket dials a WebSocket client against the relay.
func ConnectWebSocket(t *testing.T, r *Relay) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:3000")

	conn, resp, err := dialer.Dial(r.WebSocketURL(), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// SendEvent writes a framed event to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: payload}); err != nil {
		t.Fatalf("Failed to send %s event: %v", event, err)
	}
}

// ReceiveEvent reads the next framed event from the connection, failing the
// test if nothing arrives within the timeout.
func ReceiveEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return env
}

// ExpectNoEvent asserts that no event arrives on the connection within the
// given window.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var env server.Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("Expected no event, received %q", env.Event)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
