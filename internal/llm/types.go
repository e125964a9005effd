package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one streaming generation call.
type Request struct {
	Messages  []Message
	Model     string
	MaxTokens int64
}

// EventType tags the events produced by a provider stream.
type EventType int

const (
	EventTextDelta EventType = iota
	EventDone
	EventError
)

// Event is a single item produced by a provider stream.
// EventTextDelta carries Text, EventDone carries the final Message,
// EventError carries Err.
type Event struct {
	Type    EventType
	Text    string
	Message *ProviderMessage
	Err     error
}

// Stream is a pull-based sequence of Events. Recv returns io.EOF after the
// final event has been consumed.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider is an opaque streaming text-generation service.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Usage reports token accounting from the provider.
type Usage struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}

// ProviderMessage is the provider's aggregated final message. It is relayed
// to clients untransformed; servers and clients treat its content blocks as
// opaque except for text extraction.
type ProviderMessage struct {
	ID         string         `json:"id,omitempty"`
	Model      string         `json:"model,omitempty"`
	Role       string         `json:"role,omitempty"`
	StopReason string         `json:"stop_reason,omitempty"`
	Content    []ContentBlock `json:"content"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// TextContent concatenates the text of all text-typed content blocks.
func (m *ProviderMessage) TextContent() string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range m.Content {
		if block.Kind == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// BlockKind identifies a content block variant.
type BlockKind string

const (
	BlockText                BlockKind = "text"
	BlockToolUse             BlockKind = "tool_use"
	BlockServerToolUse       BlockKind = "server_tool_use"
	BlockWebSearchToolResult BlockKind = "web_search_tool_result"
	BlockThinking            BlockKind = "thinking"
	BlockRedactedThinking    BlockKind = "redacted_thinking"
)

// ContentBlock is a closed tagged union over the documented block kinds.
// Unknown kinds are preserved verbatim through Raw so newer provider payloads
// survive a round trip unmodified.
type ContentBlock struct {
	Kind BlockKind

	// text
	Text string

	// tool_use / server_tool_use
	ToolID string
	Name   string
	Input  json.RawMessage

	// thinking
	Thinking  string
	Signature string

	// redacted_thinking
	Data string

	// Raw holds the original JSON for every decoded block; marshaling emits
	// it unchanged when present.
	Raw json.RawMessage
}

type contentBlockJSON struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Data      string          `json:"data,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if len(b.Raw) > 0 {
		return b.Raw, nil
	}
	return json.Marshal(contentBlockJSON{
		Type:      string(b.Kind),
		Text:      b.Text,
		ID:        b.ToolID,
		Name:      b.Name,
		Input:     b.Input,
		Thinking:  b.Thinking,
		Signature: b.Signature,
		Data:      b.Data,
	})
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var decoded contentBlockJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	b.Raw = append(json.RawMessage(nil), data...)
	b.Kind = BlockKind(decoded.Type)
	switch b.Kind {
	case BlockText:
		b.Text = decoded.Text
	case BlockToolUse, BlockServerToolUse:
		b.ToolID = decoded.ID
		b.Name = decoded.Name
		b.Input = decoded.Input
	case BlockThinking:
		b.Thinking = decoded.Thinking
		b.Signature = decoded.Signature
	case BlockRedactedThinking:
		b.Data = decoded.Data
	default:
		// Unknown kind: carried through Raw only.
	}
	return nil
}

// TextMessage builds a ProviderMessage holding a single text block. Used by
// providers that report only flat text and by the mock provider.
func TextMessage(model, text, stopReason string) *ProviderMessage {
	return &ProviderMessage{
		Model:      model,
		Role:       string(RoleAssistant),
		StopReason: stopReason,
		Content:    []ContentBlock{TextBlock(text)},
	}
}
