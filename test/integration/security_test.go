// Package integration contains end-to-end tests for the chat relay.
package integration

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virangaj/test-socket-chat-server/internal/server"
	"github.com/virangaj/test-socket-chat-server/test/testhelpers"
)

// startRestrictedRelay boots a relay that only accepts upgrades from the
// given origins.
func startRestrictedRelay(t *testing.T, backendURL string, origins []string) *httptest.Server {
	t.Helper()

	cfg := server.NewConfig(backendURL)
	cfg.AllowedOrigins = origins

	hub := server.NewHub()
	go hub.Run()
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
	})

	backend := server.NewBackendClient(cfg.BackendServer, cfg.BackendTimeout)
	dispatcher := server.NewDispatcher(hub, backend)
	handlers := server.NewHandlers(cfg, hub, dispatcher)

	ts := httptest.NewServer(server.SetupRoutes(handlers))
	t.Cleanup(ts.Close)
	return ts
}

func dialWithOrigin(ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return dialer.Dial(url, headers)
}

func TestUpgradeRejectsDisallowedOrigin(t *testing.T) {
	backend := testhelpers.NewFakeBackend(t, `[]`, `{}`)
	ts := startRestrictedRelay(t, backend.Server.URL, []string{"https://dofe.ayozat.co.uk"})

	conn, resp, err := dialWithOrigin(ts, "https://evil.example.com")
	if conn != nil {
		_ = conn.Close()
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUpgradeAcceptsAllowedOrigin(t *testing.T) {
	backend := testhelpers.NewFakeBackend(t, `[]`, `{}`)
	ts := startRestrictedRelay(t, backend.Server.URL, []string{"https://dofe.ayozat.co.uk"})

	conn, resp, err := dialWithOrigin(ts, "https://dofe.ayozat.co.uk")
	if resp != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, err)
	_ = conn.Close()
}

func TestOversizedEventClosesConnection(t *testing.T) {
	backend := testhelpers.NewFakeBackend(t, `[]`, `{}`)

	cfg := server.NewConfig(backend.Server.URL)
	cfg.MaxMessageSize = 128

	hub := server.NewHub()
	go hub.Run()
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
	})

	backendClient := server.NewBackendClient(cfg.BackendServer, cfg.BackendTimeout)
	dispatcher := server.NewDispatcher(hub, backendClient)
	handlers := server.NewHandlers(cfg, hub, dispatcher)

	ts := httptest.NewServer(server.SetupRoutes(handlers))
	t.Cleanup(ts.Close)

	conn, resp, err := dialWithOrigin(ts, "")
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	big := strings.Repeat("x", 1024)
	testhelpers.SendEvent(t, conn, server.EventChatChange, map[string]any{
		"payperviewId": 1,
		"userId":       big,
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, readErr := conn.ReadMessage()
	assert.Error(t, readErr, "server should drop connections exceeding the frame limit")
}
