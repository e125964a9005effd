package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/radiosilence/anthropic-play/internal/llm"
	"github.com/radiosilence/anthropic-play/internal/relay"
)

// APIError is a structured non-200 response from the relay.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client is the HTTP transport for the relay endpoints. It implements
// Transport for the direct streaming mode.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the relay at baseURL. No global timeout is set on
// the underlying http.Client: responses are long-lived streams, and
// cancellation flows through request contexts.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Send issues a direct-mode chat request and returns the live event stream.
func (c *Client) Send(ctx context.Context, messages []llm.Message) (EventSource, error) {
	resp, err := c.post(ctx, "/v1/chat", relay.ChatRequest{Messages: messages})
	if err != nil {
		return nil, err
	}
	return &streamHandle{body: resp.Body, decoder: NewDecoder(resp.Body)}, nil
}

// SendChannel issues a channel-mode chat request and returns the channel ID
// to subscribe on. An empty channelID lets the server assign one.
func (c *Client) SendChannel(ctx context.Context, messages []llm.Message, channelID string) (string, error) {
	resp, err := c.post(ctx, "/v1/chat?mode=channel", relay.ChatRequest{Messages: messages, ChannelID: channelID})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var ack relay.ChannelAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", fmt.Errorf("decode channel ack: %w", err)
	}
	return ack.ChannelID, nil
}

// Subscribe opens the long-lived event stream for a channel.
func (c *Client) Subscribe(ctx context.Context, channelID string) (EventSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/chat/subscribe/"+channelID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	return &streamHandle{body: resp.Body, decoder: NewDecoder(resp.Body)}, nil
}

// Health probes the relay's liveness endpoint.
func (c *Client) Health(ctx context.Context) (*relay.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var health relay.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &health, nil
}

func (c *Client) post(ctx context.Context, path string, body relay.ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

// streamHandle couples a response body with its frame decoder.
type streamHandle struct {
	body    io.ReadCloser
	decoder *Decoder
}

func (h *streamHandle) Next() (relay.StreamEvent, error) {
	return h.decoder.Next()
}

func (h *streamHandle) Close() error {
	return h.body.Close()
}
