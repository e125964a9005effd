package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/radiosilence/anthropic-play/internal/relay"
)

// Decoder turns a raw byte stream into a lazy, finite sequence of stream
// events. Frames are newline-delimited JSON records; a partial trailing
// frame is buffered until the rest arrives, so the decoded sequence does not
// depend on read chunk boundaries. Frames that fail schema validation are
// skipped rather than aborting the stream.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Complete frames carry full provider messages; allow large records.
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next valid frame, or io.EOF once the underlying stream
// ends. No terminal event is synthesized beyond what the server sent.
func (d *Decoder) Next() (relay.StreamEvent, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var event relay.StreamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			slog.Debug("skipping unparseable frame", "error", err)
			continue
		}
		if !event.Valid() {
			slog.Debug("skipping invalid frame", "type", event.Type)
			continue
		}
		return event, nil
	}
	if err := d.scanner.Err(); err != nil {
		return relay.StreamEvent{}, err
	}
	return relay.StreamEvent{}, io.EOF
}
