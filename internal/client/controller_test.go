package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/radiosilence/anthropic-play/internal/llm"
	"github.com/radiosilence/anthropic-play/internal/relay"
	"github.com/radiosilence/anthropic-play/internal/storage"
)

// scriptedSource replays a fixed event sequence, then either ends the stream
// or blocks until the request context is cancelled.
type scriptedSource struct {
	ctx    context.Context
	events []relay.StreamEvent
	tail   error // returned after events run out; nil means block on ctx
	idx    int
}

func (s *scriptedSource) Next() (relay.StreamEvent, error) {
	if s.idx < len(s.events) {
		event := s.events[s.idx]
		s.idx++
		return event, nil
	}
	if s.tail != nil {
		return relay.StreamEvent{}, s.tail
	}
	<-s.ctx.Done()
	return relay.StreamEvent{}, s.ctx.Err()
}

func (s *scriptedSource) Close() error { return nil }

// scriptedTransport hands out one scriptedSource per send and records the
// request payloads.
type scriptedTransport struct {
	mu      sync.Mutex
	events  []relay.StreamEvent
	tail    error
	sendErr error
	sent    [][]llm.Message
	started chan struct{}
}

func newScriptedTransport(tail error, events ...relay.StreamEvent) *scriptedTransport {
	return &scriptedTransport{events: events, tail: tail, started: make(chan struct{}, 8)}
}

func (t *scriptedTransport) Send(ctx context.Context, messages []llm.Message) (EventSource, error) {
	t.mu.Lock()
	t.sent = append(t.sent, messages)
	t.mu.Unlock()
	t.started <- struct{}{}
	if t.sendErr != nil {
		return nil, t.sendErr
	}
	return &scriptedSource{ctx: ctx, events: t.events, tail: t.tail}, nil
}

func (t *scriptedTransport) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func newTestController(transport Transport) *Controller {
	store := NewMessageStore(context.Background(), storage.NewMemStore())
	return NewController(transport, store)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSendMessageStreamsIntoPlaceholder(t *testing.T) {
	transport := newScriptedTransport(io.EOF,
		relay.Delta("hel"),
		relay.Delta("lo"),
		relay.Complete(llm.TextMessage("m", "hello", "end_turn")),
	)
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi there"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	messages := ctrl.Store().Messages()
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(messages))
	}
	if messages[0].Role != llm.RoleUser || messages[0].Content != "hi there" {
		t.Errorf("user turn: %+v", messages[0])
	}
	if messages[1].Role != llm.RoleAssistant || messages[1].Content != "hello" {
		t.Errorf("assistant turn: %+v", messages[1])
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state = %v, want idle", ctrl.State())
	}
}

func TestCompleteWithoutTextKeepsAccumulatedDeltas(t *testing.T) {
	final := &llm.ProviderMessage{Model: "m", Role: "assistant", StopReason: "end_turn"}
	transport := newScriptedTransport(io.EOF,
		relay.Delta("partial answer"),
		relay.Complete(final),
	)
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	messages := ctrl.Store().Messages()
	if messages[1].Content != "partial answer" {
		t.Errorf("assistant content = %q", messages[1].Content)
	}
}

func TestBlankInputIsNoOp(t *testing.T) {
	transport := newScriptedTransport(io.EOF)
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "  \n\t "); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if ctrl.Store().Len() != 0 {
		t.Errorf("transcript grew on blank input")
	}
	if transport.calls() != 0 {
		t.Errorf("transport called for blank input")
	}
}

func TestErrorEventAnnotatesPlaceholder(t *testing.T) {
	transport := newScriptedTransport(io.EOF,
		relay.Delta("halfway"),
		relay.Error("upstream overloaded"),
	)
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	messages := ctrl.Store().Messages()
	if want := "halfway\n\nError: upstream overloaded"; messages[1].Content != want {
		t.Errorf("assistant content = %q, want %q", messages[1].Content, want)
	}
	if ctrl.State() != StateError {
		t.Errorf("state = %v, want error", ctrl.State())
	}
	if ctrl.LastError() != "upstream overloaded" {
		t.Errorf("LastError = %q", ctrl.LastError())
	}
}

func TestErrorBeforeFirstDeltaReplacesPlaceholder(t *testing.T) {
	transport := newScriptedTransport(io.EOF, relay.Error("no capacity"))
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	messages := ctrl.Store().Messages()
	if want := "Error: no capacity"; messages[1].Content != want {
		t.Errorf("assistant content = %q, want %q", messages[1].Content, want)
	}
}

func TestTransportFailureAnnotates(t *testing.T) {
	transport := newScriptedTransport(io.EOF)
	transport.sendErr = errors.New("connection refused")
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	messages := ctrl.Store().Messages()
	if want := "Error: connection refused"; messages[1].Content != want {
		t.Errorf("assistant content = %q, want %q", messages[1].Content, want)
	}
	if ctrl.State() != StateError {
		t.Errorf("state = %v, want error", ctrl.State())
	}
}

func TestStopBeforeFirstDeltaRemovesPlaceholder(t *testing.T) {
	transport := newScriptedTransport(nil) // blocks until cancelled
	ctrl := newTestController(transport)

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "hi") }()

	<-transport.started
	ctrl.StopStreaming()

	if err := <-done; err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	messages := ctrl.Store().Messages()
	if len(messages) != 1 || messages[0].Role != llm.RoleUser {
		t.Fatalf("transcript after abort: %+v", messages)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state = %v, want idle", ctrl.State())
	}
	if ctrl.LastError() != "" {
		t.Errorf("cancellation recorded an error: %q", ctrl.LastError())
	}
}

func TestStopAfterDeltaKeepsPartial(t *testing.T) {
	transport := newScriptedTransport(nil, relay.Delta("partial text")) // then blocks
	ctrl := newTestController(transport)

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "hi") }()

	waitFor(t, func() bool {
		messages := ctrl.Store().Messages()
		return len(messages) == 2 && messages[1].Content == "partial text"
	})
	ctrl.StopStreaming()

	if err := <-done; err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	messages := ctrl.Store().Messages()
	if len(messages) != 2 || messages[1].Content != "partial text" {
		t.Fatalf("transcript after stop: %+v", messages)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state = %v, want idle", ctrl.State())
	}
}

func TestSecondSendRejectedWhileStreaming(t *testing.T) {
	transport := newScriptedTransport(nil)
	ctrl := newTestController(transport)

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(context.Background(), "first") }()
	<-transport.started

	if err := ctrl.SendMessage(context.Background(), "second"); !errors.Is(err, ErrStreamInProgress) {
		t.Fatalf("got %v, want ErrStreamInProgress", err)
	}

	ctrl.StopStreaming()
	<-done

	if transport.calls() != 1 {
		t.Errorf("transport called %d times, want 1", transport.calls())
	}
}

func TestStreamEndWithoutTerminalKeepsPartial(t *testing.T) {
	transport := newScriptedTransport(io.EOF, relay.Delta("cut off"))
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	messages := ctrl.Store().Messages()
	if messages[1].Content != "cut off" {
		t.Errorf("assistant content = %q", messages[1].Content)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state = %v, want idle", ctrl.State())
	}
}

func TestRequestPayloadSkipsPlaceholder(t *testing.T) {
	transport := newScriptedTransport(io.EOF,
		relay.Complete(llm.TextMessage("m", "hello", "end_turn")),
	)
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := ctrl.SendMessage(context.Background(), "and again"); err != nil {
		t.Fatalf("second send: %v", err)
	}

	transport.mu.Lock()
	second := transport.sent[1]
	transport.mu.Unlock()

	want := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "and again"},
	}
	if len(second) != len(want) {
		t.Fatalf("second payload: %+v", second)
	}
	for i := range want {
		if second[i] != want[i] {
			t.Errorf("payload message %d: got %+v, want %+v", i, second[i], want[i])
		}
	}
}

func TestResetClearsTranscriptAndError(t *testing.T) {
	transport := newScriptedTransport(io.EOF, relay.Error("boom"))
	ctrl := newTestController(transport)

	if err := ctrl.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if ctrl.State() != StateError {
		t.Fatalf("state = %v, want error before reset", ctrl.State())
	}

	ctrl.ResetChat(context.Background())
	if ctrl.Store().Len() != 0 {
		t.Errorf("transcript not cleared")
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state = %v, want idle", ctrl.State())
	}
	if ctrl.LastError() != "" {
		t.Errorf("LastError = %q", ctrl.LastError())
	}
}
