package backend

import (
	"context"
	"errors"
	"io"
	"strings"
)

// readChunkSize is the read buffer for streamed responses
const readChunkSize = 4096

// ChatStream sends a message and delivers the answer incrementally.
// OnComplete is always called exactly once, with a best-effort answer whose
// Err is set if the request or the stream failed.
func (c *Client) ChatStream(ctx context.Context, message string, callbacks StreamCallbacks) {
	completed := false
	complete := func(a Answer) {
		if completed {
			return
		}
		completed = true
		if callbacks.OnComplete != nil {
			callbacks.OnComplete(a)
		}
	}

	if strings.TrimSpace(message) == "" {
		complete(Answer{Err: ErrEmptyMessage})
		return
	}

	resp, err := c.postJSON(ctx, c.streamingClient, c.apiURL("/chat/stream"), ChatRequest{Message: message})
	if err != nil {
		complete(Answer{Err: &TransportError{Op: "chat stream", Err: err}})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		complete(Answer{Err: statusError("chat stream", resp)})
		return
	}

	dispatch := func(events []Event) {
		for _, ev := range events {
			switch ev.Kind {
			case EventToken:
				if !completed && callbacks.OnToken != nil {
					callbacks.OnToken(ev.Token)
				}
			default:
				complete(ev.Answer)
			}
		}
	}

	r := NewReassembler(c.logger)
	err = ReadChunks(resp.Body, func(chunk []byte) bool {
		dispatch(r.Feed(chunk))
		return !r.Done()
	})

	switch {
	case r.Done():
	case err != nil:
		c.logger.Warn("stream read failed", "error", err)
		dispatch(r.Fail(&TransportError{Op: "chat stream", Err: err}))
	default:
		dispatch(r.Finish())
	}
}

// ReadChunks reads src until EOF, passing every non-empty chunk to fn.
// It stops early when fn returns false. EOF is not reported as an error.
func ReadChunks(src io.Reader, fn func(chunk []byte) bool) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 && !fn(buf[:n]) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
