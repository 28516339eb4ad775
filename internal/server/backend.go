// Package server talks to the upstream message store on behalf of connected
// clients, forwarding their bearer tokens and mapping transport failures to a
// small error taxonomy.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Errors returned by backend calls. Callers treat both the same way (log and
// suppress) but the distinction is kept for observability.
var (
	// ErrUpstreamUnavailable indicates the backend could not be reached or
	// did not answer within the configured timeout.
	ErrUpstreamUnavailable = errors.New("upstream backend unavailable")

	// ErrUpstreamRejected indicates the backend answered with a non-2xx
	// status.
	ErrUpstreamRejected = errors.New("upstream backend rejected request")
)

// BackendClient is the capability the dispatcher needs from the upstream
// message store: fetch the history for a session and append a message to it.
// Both calls attach the caller-supplied bearer token.
type BackendClient interface {
	FetchMessages(ctx context.Context, payperviewID PayperviewID, token string) (json.RawMessage, error)
	PostMessage(ctx context.Context, payperviewID PayperviewID, message, token string) (json.RawMessage, error)
}

// HTTPBackendClient implements BackendClient against the REST API configured
// through BACKEND_SERVER.
type HTTPBackendClient struct {
	baseURL string
	client  *http.Client
}

// NewBackendClient creates a backend client for the given base URL. Every
// call is bounded by the provided timeout; expiry surfaces as
// ErrUpstreamUnavailable.
func NewBackendClient(baseURL string, timeout time.Duration) *HTTPBackendClient {
	return &HTTPBackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchMessages retrieves the message history for a pay-per-view session.
func (b *HTTPBackendClient) FetchMessages(ctx context.Context, payperviewID PayperviewID, token string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/ppv/%s/messages", b.baseURL, payperviewID)
	return b.do(ctx, http.MethodGet, url, nil, token)
}

// PostMessage appends a chat message to a pay-per-view session and returns
// the backend's response payload.
func (b *HTTPBackendClient) PostMessage(ctx context.Context, payperviewID PayperviewID, message, token string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/ppv/%s/message", b.baseURL, payperviewID)
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return nil, fmt.Errorf("marshal message body: %w", err)
	}
	return b.do(ctx, http.MethodPost, url, body, token)
}

func (b *HTTPBackendClient) do(ctx context.Context, method, url string, body []byte, token string) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUpstreamRejected, method, url, resp.StatusCode)
	}

	return payload, nil
}
