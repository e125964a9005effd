package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/radiosilence/anthropic-play/internal/llm"
	"github.com/radiosilence/anthropic-play/internal/relay"
)

// ErrStreamInProgress is returned when a send is attempted while a response
// is still streaming. Concurrent sends are rejected, never queued.
var ErrStreamInProgress = errors.New("a response is already streaming")

// State is the controller's request state machine:
// idle -> streaming -> (idle | idle-with-error).
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateError
)

// EventSource is a pull-based stream of decoded wire events.
type EventSource interface {
	Next() (relay.StreamEvent, error)
	Close() error
}

// Transport issues a streaming chat request and returns its event source.
type Transport interface {
	Send(ctx context.Context, messages []llm.Message) (EventSource, error)
}

// Controller orchestrates user input, the message store, the streaming
// transport, and render state. At most one request is in flight at a time.
type Controller struct {
	transport Transport
	store     *MessageStore
	onUpdate  func()

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	cancelled bool
	lastErr   string
}

func NewController(transport Transport, store *MessageStore) *Controller {
	return &Controller{transport: transport, store: store}
}

// OnUpdate registers a render hook invoked after every transcript or state
// mutation. Set before first use; not synchronized.
func (c *Controller) OnUpdate(fn func()) {
	c.onUpdate = fn
}

// State returns the current request state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error recorded by the most recent failed request.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Store exposes the message store for rendering.
func (c *Controller) Store() *MessageStore {
	return c.store
}

// SendMessage appends a user turn plus an assistant placeholder, streams the
// response into the placeholder, and blocks until the stream reaches a
// terminal state. Blank input is a no-op; a second call while streaming
// returns ErrStreamInProgress.
func (c *Controller) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	c.mu.Lock()
	if c.state == StateStreaming {
		c.mu.Unlock()
		return ErrStreamInProgress
	}
	streamCtx, cancel := context.WithCancel(ctx)
	c.state = StateStreaming
	c.cancel = cancel
	c.cancelled = false
	c.lastErr = ""
	c.mu.Unlock()
	defer cancel()

	userMsg := NewChatMessage(llm.RoleUser, content)
	placeholder := NewChatMessage(llm.RoleAssistant, "")
	c.store.Append(ctx, userMsg)
	c.store.Append(ctx, placeholder)
	c.notify()

	source, err := c.transport.Send(streamCtx, c.requestMessages(placeholder.ID))
	if err != nil {
		return c.finishFailed(ctx, placeholder.ID, "", err)
	}
	defer source.Close()

	var accumulated strings.Builder
	for {
		event, err := source.Next()
		if errors.Is(err, io.EOF) {
			// Stream ended without a terminal frame; keep what arrived.
			c.finish(StateIdle)
			return nil
		}
		if err != nil {
			return c.finishFailed(ctx, placeholder.ID, accumulated.String(), err)
		}

		switch event.Type {
		case relay.EventDelta:
			accumulated.WriteString(event.Content)
			c.store.AppendContent(ctx, placeholder.ID, event.Content)
			c.notify()
		case relay.EventComplete:
			text := event.Response.TextContent()
			if text == "" {
				// Final message carried no text blocks; keep the deltas.
				text = accumulated.String()
			}
			c.store.SetContent(ctx, placeholder.ID, text)
			c.finish(StateIdle)
			return nil
		case relay.EventError:
			c.annotateError(ctx, placeholder.ID, accumulated.String(), event.Error)
			c.finish(StateError)
			return nil
		}
	}
}

// StopStreaming cancels the in-flight request. Partial content already
// folded into the placeholder is kept; only an abort before the first delta
// removes the placeholder. Cancellation is not an error.
func (c *Controller) StopStreaming() {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ResetChat cancels any in-flight request and clears the transcript along
// with its persisted mirror.
func (c *Controller) ResetChat(ctx context.Context) {
	c.StopStreaming()
	c.store.Reset(ctx)
	c.mu.Lock()
	c.lastErr = ""
	if c.state == StateError {
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.notify()
}

// requestMessages snapshots the transcript into a request payload, skipping
// the live placeholder and anything with no content.
func (c *Controller) requestMessages(placeholderID string) []llm.Message {
	var messages []llm.Message
	for _, msg := range c.store.Messages() {
		if msg.ID == placeholderID || msg.Content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return messages
}

// finishFailed resolves a transport or read error: a user-initiated stop (or
// request timeout, which behaves identically) is not an error.
func (c *Controller) finishFailed(ctx context.Context, placeholderID, partial string, err error) error {
	c.mu.Lock()
	cancelled := c.cancelled
	c.mu.Unlock()

	if cancelled || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if partial == "" {
			c.store.Remove(ctx, placeholderID)
		}
		c.finish(StateIdle)
		return nil
	}

	c.annotateError(ctx, placeholderID, partial, err.Error())
	c.finish(StateError)
	return nil
}

func (c *Controller) annotateError(ctx context.Context, placeholderID, partial, message string) {
	if partial == "" {
		c.store.SetContent(ctx, placeholderID, "Error: "+message)
	} else {
		c.store.AppendContent(ctx, placeholderID, "\n\nError: "+message)
	}
	c.mu.Lock()
	c.lastErr = message
	c.mu.Unlock()
}

func (c *Controller) finish(state State) {
	c.mu.Lock()
	c.state = state
	c.cancel = nil
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}
