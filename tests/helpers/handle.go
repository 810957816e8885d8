package helpers

import (
	"errors"
	"sync"

	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

// ErrHandleClosed is returned by RecordingHandle.Send after Close.
var ErrHandleClosed = errors.New("handle closed")

// RecordingHandle is an in-memory connection handle that keeps every frame sent to it.
type RecordingHandle struct {
	id string

	mu      sync.Mutex
	frames  []protocol.Frame
	closed  bool
	sendErr error
}

func NewRecordingHandle(id string) *RecordingHandle {
	return &RecordingHandle{id: id}
}

func (h *RecordingHandle) ID() string { return h.id }

func (h *RecordingHandle) Send(frame protocol.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sendErr != nil {
		return h.sendErr
	}
	if h.closed {
		return ErrHandleClosed
	}
	h.frames = append(h.frames, frame)
	return nil
}

func (h *RecordingHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// FailSends makes every following Send return err.
func (h *RecordingHandle) FailSends(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendErr = err
}

func (h *RecordingHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Frames returns a copy of the frames received so far.
func (h *RecordingHandle) Frames() []protocol.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Frame(nil), h.frames...)
}

// Types returns the type of every frame received, in order.
func (h *RecordingHandle) Types() []string {
	frames := h.Frames()
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f.MessageType())
	}
	return types
}

// OfType returns the received frames with the given type, in order.
func (h *RecordingHandle) OfType(typ string) []protocol.Frame {
	var out []protocol.Frame
	for _, f := range h.Frames() {
		if f.MessageType() == typ {
			out = append(out, f)
		}
	}
	return out
}

// Reset forgets every frame received so far.
func (h *RecordingHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = nil
}
