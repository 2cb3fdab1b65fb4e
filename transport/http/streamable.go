package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// EventStream writes server-sent events to one open response.
type EventStream struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
	onClose func()
	once    sync.Once
}

// NewEventStream wraps an SSE response. onClose runs once, on the first Close.
func NewEventStream(w http.ResponseWriter, f http.Flusher, onClose func()) *EventStream {
	return &EventStream{
		writer:  w,
		flusher: f,
		onClose: onClose,
	}
}

// Send writes one event whose data line is data's JSON encoding.
func (t *EventStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("event stream is closed")
	}
	if err := t.writeLocked(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload)); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	return nil
}

// SendComment writes a comment frame; the panel ignores it, proxies see
// traffic.
func (t *EventStream) SendComment(comment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("event stream is closed")
	}

	comment = strings.ReplaceAll(comment, "\r\n", "\n")
	comment = strings.ReplaceAll(comment, "\n", "\n: ")
	if err := t.writeLocked(": " + comment + "\n\n"); err != nil {
		return fmt.Errorf("failed to write comment: %w", err)
	}
	return nil
}

func (t *EventStream) writeLocked(frame string) error {
	if _, err := t.writer.Write([]byte(frame)); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *EventStream) Close() {
	t.mu.Lock()
	wasOpen := !t.closed
	t.closed = true
	t.mu.Unlock()

	if wasOpen && t.onClose != nil {
		t.once.Do(t.onClose)
	}
}

func (t *EventStream) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
