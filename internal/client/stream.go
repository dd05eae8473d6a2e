// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jeranaias/coprelay/internal/copilot"
	"github.com/jeranaias/coprelay/internal/workspace"
)

// MaxEventSize caps a single SSE event. The trailing files event carries
// whole base64 artifacts, so the cap is far larger than a delta frame
// needs.
const MaxEventSize = 8 * 1024 * 1024

// =============================================================================
// STREAM EVENTS
// =============================================================================

// StreamEvent is one decoded frame from the relay's event stream: either
// a content delta or the trailing files event.
type StreamEvent struct {
	ID           string
	Content      string
	FinishReason string
	Files        []workspace.FileArtifact
	FilesCount   int

	// Err carries failures on the channel variant, where there is no
	// error return to deliver them through.
	Err error
}

// Done reports whether this is the final content delta.
func (e StreamEvent) Done() bool {
	return e.FinishReason != ""
}

// HasFiles reports whether this is the trailing files event.
func (e StreamEvent) HasFiles() bool {
	return e.FilesCount > 0
}

// StreamCallback receives each decoded event in order.
type StreamCallback func(event StreamEvent)

// streamFrame is the superset wire shape of delta and files frames.
type streamFrame struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Files      []workspace.FileArtifact `json:"files"`
	FilesCount int                      `json:"files_count"`
}

// toEvent flattens a wire frame into a StreamEvent.
func (f *streamFrame) toEvent() StreamEvent {
	ev := StreamEvent{
		ID:         f.ID,
		Files:      f.Files,
		FilesCount: f.FilesCount,
	}
	if len(f.Choices) > 0 {
		ev.Content = f.Choices[0].Delta.Content
		if f.Choices[0].FinishReason != nil {
			ev.FinishReason = *f.Choices[0].FinishReason
		}
	}
	return ev
}

// =============================================================================
// SSE READER
// =============================================================================

// sseReader parses Server-Sent Events off a stream.
type sseReader struct {
	reader *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{reader: bufio.NewReader(r)}
}

// readEvent returns the data of the next event, or io.EOF at stream end.
// Data lines accumulate until a blank line terminates the event.
func (s *sseReader) readEvent() ([]byte, error) {
	var dataLines [][]byte
	var total int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line ends the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			data = bytes.TrimPrefix(data, []byte(" "))
			total += len(data)
			if total > MaxEventSize {
				return nil, fmt.Errorf("event exceeded maximum size of %d bytes", MaxEventSize)
			}
			dataLines = append(dataLines, data)
		}
		// Other SSE fields (event:, id:, retry:, comments) are not used
		// by the relay.
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream sends a chat request to the streaming endpoint and delivers
// each event to the callback. Failures before the first event are
// retried like Chat; once anything reached the callback the attempt is
// final, since replaying deltas would duplicate output downstream.
func (c *Client) ChatStream(ctx context.Context, req *copilot.ChatRequest, callback StreamCallback) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		delivered, err := c.streamOnce(ctx, payload, callback)
		if err == nil {
			return nil
		}
		if delivered || !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// streamOnce performs one streaming attempt and reports whether any
// event reached the callback.
func (c *Client) streamOnce(ctx context.Context, payload []byte, callback StreamCallback) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/stream", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, rerr := readBody(resp)
		if rerr != nil {
			return false, rerr
		}
		return false, decodeError(resp.StatusCode, body)
	}

	delivered := false
	err = processStream(ctx, resp.Body, func(ev StreamEvent) {
		delivered = true
		callback(ev)
	})
	return delivered, err
}

// processStream decodes events until [DONE] or end of stream. The files
// event trails the final delta, so the loop runs to the terminator
// rather than stopping at a finish reason.
func processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := newSSEReader(io.LimitReader(body, MaxResponseSize))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := reader.readEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Skip malformed events rather than aborting a stream that
			// may still complete.
			continue
		}

		callback(frame.toEvent())
	}
}

// ChatStreamChan is the channel variant of ChatStream. The event channel
// closes when the stream completes; a terminal failure arrives on the
// error channel.
func (c *Client) ChatStreamChan(ctx context.Context, req *copilot.ChatRequest) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		err := c.ChatStream(ctx, req, func(ev StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errc <- err
		}
	}()

	return events, errc
}
