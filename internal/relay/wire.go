package relay

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/radiosilence/anthropic-play/internal/llm"
)

// Stream event types. Every frame on the wire is exactly one of these.
const (
	EventDelta    = "delta"
	EventComplete = "complete"
	EventError    = "error"
)

// StreamEvent is the JSON envelope relayed server->client, one frame per
// newline-delimited record. Exactly one of Content/Response/Error is
// populated, matching Type.
type StreamEvent struct {
	Type     string               `json:"type"`
	Content  string               `json:"content,omitempty"`
	Response *llm.ProviderMessage `json:"response,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Delta builds an incremental text frame.
func Delta(content string) StreamEvent {
	return StreamEvent{Type: EventDelta, Content: content}
}

// Complete builds the terminal frame carrying the provider's final message.
func Complete(response *llm.ProviderMessage) StreamEvent {
	return StreamEvent{Type: EventComplete, Response: response}
}

// Error builds a terminal error frame.
func Error(message string) StreamEvent {
	return StreamEvent{Type: EventError, Error: message}
}

// Terminal reports whether no further frames may follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Valid checks the frame against the wire schema. Clients skip invalid
// frames rather than aborting the stream.
func (e StreamEvent) Valid() bool {
	switch e.Type {
	case EventDelta:
		return e.Response == nil && e.Error == ""
	case EventComplete:
		return e.Response != nil && e.Content == "" && e.Error == ""
	case EventError:
		return e.Error != "" && e.Content == "" && e.Response == nil
	default:
		return false
	}
}

// WriteFrame encodes the event as a single newline-terminated JSON record.
func WriteFrame(w io.Writer, e StreamEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

// ChatRequest is the body of the send endpoint.
type ChatRequest struct {
	Messages  []llm.Message `json:"messages"`
	ChannelID string        `json:"channel_id,omitempty"`
}

// ChannelAck is the immediate response in channel delivery mode.
type ChannelAck struct {
	ChannelID string `json:"channel_id"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}
