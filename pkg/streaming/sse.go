package streaming

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/snow-ghost/readiness/core"
)

// SSEWriter handles Server-Sent Events writing
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	return &SSEWriter{
		w:       w,
		flusher: flusher,
	}, nil
}

// WriteEvent writes an SSE event
func (s *SSEWriter) WriteEvent(event string, data interface{}) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	for _, line := range strings.Split(string(jsonData), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}

	s.flusher.Flush()
	return nil
}

// WriteProgress writes a progress event named after its kind
func (s *SSEWriter) WriteProgress(ev core.ProgressEvent) error {
	return s.WriteEvent(string(ev.Kind), ev)
}

// WriteComment writes a keep-alive comment line
func (s *SSEWriter) WriteComment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError writes an error event
func (s *SSEWriter) WriteError(err error) error {
	return s.WriteEvent("error", map[string]interface{}{
		"error": err.Error(),
		"type":  "error",
	})
}

// EventFunc receives one parsed SSE event
type EventFunc func(event string, data []byte) error

// ParseSSEStream parses an SSE stream, calling fn for every complete event
func ParseSSEStream(ctx context.Context, r io.Reader, fn EventFunc) error {
	reader := bufio.NewReader(r)
	var currentEvent string
	var currentData strings.Builder

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if currentData.Len() > 0 {
				if err := fn(currentEvent, []byte(currentData.String())); err != nil {
					return err
				}
			}
			currentEvent = ""
			currentData.Reset()
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if currentData.Len() > 0 {
				currentData.WriteString("\n")
			}
			currentData.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
}

// ParseProgress decodes a progress event payload
func ParseProgress(data []byte) (core.ProgressEvent, error) {
	var ev core.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal progress event: %w", err)
	}
	return ev, nil
}
