package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	// dataPrefix marks a line that carries an event payload
	dataPrefix = "data:"

	// doneSentinel is the payload that terminates a stream
	doneSentinel = "[DONE]"
)

// EventKind identifies a reassembled stream event
type EventKind int

const (
	EventToken EventKind = iota
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one logical event recovered from the stream
type Event struct {
	Kind   EventKind
	Token  string
	Answer Answer

	// Implicit is set on a completion synthesised because the stream ended
	// without a complete frame
	Implicit bool
}

// Terminal reports whether the event ends the stream
func (e Event) Terminal() bool {
	return e.Kind != EventToken
}

// ProtocolFrameError describes a frame whose payload could not be parsed
type ProtocolFrameError struct {
	Payload string
	Err     error
}

func (e *ProtocolFrameError) Error() string {
	return fmt.Sprintf("malformed stream frame %q: %v", e.Payload, e.Err)
}

func (e *ProtocolFrameError) Unwrap() error {
	return e.Err
}

// Reassembler turns arbitrarily chunked stream bytes into events. Lines are
// buffered until their newline arrives, so a frame split across chunks is
// recognised once complete. It is not safe for concurrent use.
type Reassembler struct {
	buf    []byte
	done   bool
	logger *slog.Logger
}

// NewReassembler creates a reassembler that logs skipped frames to logger
func NewReassembler(logger *slog.Logger) *Reassembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reassembler{logger: logger}
}

// Done reports whether a terminal event has been produced
func (r *Reassembler) Done() bool {
	return r.done
}

// Feed consumes the next chunk and returns the events it completed
func (r *Reassembler) Feed(chunk []byte) []Event {
	if r.done || len(chunk) == 0 {
		return nil
	}

	r.buf = append(r.buf, chunk...)

	var events []Event
	for !r.done {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			break
		}
		line := r.buf[:i]
		r.buf = r.buf[i+1:]
		events = r.frame(line, events)
	}

	if r.done {
		r.buf = nil
	} else if len(r.buf) == 0 {
		// Release the backing array between frames
		r.buf = nil
	}

	return events
}

// Finish is called when the source is exhausted. The unterminated remainder
// is treated as a last frame; if the stream still has not ended, an implicit
// empty completion is returned so callers are never left waiting.
func (r *Reassembler) Finish() []Event {
	if r.done {
		return nil
	}

	var events []Event
	if len(r.buf) > 0 {
		line := r.buf
		r.buf = nil
		events = r.frame(line, events)
	}

	if !r.done {
		r.done = true
		events = append(events, Event{Kind: EventComplete, Implicit: true})
	}
	return events
}

// Fail converts a read failure into a single error completion. Tokens
// already delivered are not retracted.
func (r *Reassembler) Fail(err error) []Event {
	if r.done {
		return nil
	}
	r.done = true
	r.buf = nil
	return []Event{{
		Kind:   EventError,
		Answer: Answer{Err: err},
	}}
}

// frame handles one complete line, appending any resulting event
func (r *Reassembler) frame(line []byte, events []Event) []Event {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return events
	}

	data := bytes.TrimSpace(line[len(dataPrefix):])
	if len(data) == 0 {
		return events
	}

	if string(data) == doneSentinel {
		r.done = true
		return append(events, Event{Kind: EventComplete, Implicit: true})
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		r.logger.Warn("skipping stream frame", "error", &ProtocolFrameError{Payload: string(data), Err: err})
		return events
	}

	if p.Token != "" {
		events = append(events, Event{Kind: EventToken, Token: p.Token})
	}

	switch {
	case p.Complete:
		r.done = true
		events = append(events, Event{Kind: EventComplete, Answer: p.answer()})
	case p.Error != "":
		r.done = true
		events = append(events, Event{Kind: EventError, Answer: p.answer()})
	}

	return events
}
