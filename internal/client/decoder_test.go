package client

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/radiosilence/anthropic-play/internal/relay"
)

// byteAtATimeReader delivers one byte per Read call to exercise frame
// reassembly across arbitrary chunk boundaries.
type byteAtATimeReader struct {
	data []byte
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func collectEvents(t *testing.T, d *Decoder) []relay.StreamEvent {
	t.Helper()
	var events []relay.StreamEvent
	for {
		event, err := d.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, event)
	}
}

const sampleStream = `{"type":"delta","content":"hel"}
{"type":"delta","content":"lo"}
{"type":"complete","response":{"id":"msg_1","model":"m","role":"assistant","stop_reason":"end_turn","content":[{"type":"text","text":"hello"}]}}
`

func TestDecoderReadsFrames(t *testing.T) {
	d := NewDecoder(strings.NewReader(sampleStream))
	events := collectEvents(t, d)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Content+events[1].Content != "hello" {
		t.Errorf("deltas: %q %q", events[0].Content, events[1].Content)
	}
	if events[2].Type != relay.EventComplete {
		t.Fatalf("last type = %q", events[2].Type)
	}
	if got := events[2].Response.TextContent(); got != "hello" {
		t.Errorf("complete text = %q", got)
	}
}

func TestDecoderIndependentOfChunkBoundaries(t *testing.T) {
	whole := collectEvents(t, NewDecoder(strings.NewReader(sampleStream)))
	fragmented := collectEvents(t, NewDecoder(&byteAtATimeReader{data: []byte(sampleStream)}))

	if len(whole) != len(fragmented) {
		t.Fatalf("event counts differ: %d vs %d", len(whole), len(fragmented))
	}
	for i := range whole {
		if whole[i].Type != fragmented[i].Type || whole[i].Content != fragmented[i].Content {
			t.Errorf("event %d differs: %+v vs %+v", i, whole[i], fragmented[i])
		}
	}
}

func TestDecoderSkipsMalformedFrames(t *testing.T) {
	input := `{"type":"delta","content":"a"}
not json at all
{"type":"mystery"}
{"type":"complete"}

{"type":"delta","content":"b"}
{"type":"error","error":"boom"}
`
	events := collectEvents(t, NewDecoder(strings.NewReader(input)))
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(events), events)
	}
	if events[0].Content != "a" || events[2].Content != "b" {
		t.Errorf("wrong surviving deltas: %+v", events)
	}
	if events[3].Type != relay.EventError || events[3].Error != "boom" {
		t.Errorf("last event: %+v", events[3])
	}
}

func TestDecoderEOFOnEmptyStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(""))
	if _, err := d.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}
