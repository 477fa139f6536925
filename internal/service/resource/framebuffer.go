package resource

import (
	"sync"
	"time"

	"exam-proctor-service/internal/service/detector"
)

// FrameBuffer is a camera holding the latest frame pushed to it.
type FrameBuffer struct {
	mu      sync.RWMutex
	frame   detector.Frame
	has     bool
	closed  bool
	onClose func() error
	now     func() time.Time
}

// NewFrameBuffer creates an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{now: time.Now}
}

// Set replaces the current frame. Ignored after Close.
func (b *FrameBuffer) Set(data []byte) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.frame = detector.Frame{Data: data, CapturedAt: b.now()}
	b.has = true
}

// CurrentFrame returns the latest frame, false when none has arrived yet.
func (b *FrameBuffer) CurrentFrame() (detector.Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed || !b.has {
		return detector.Frame{}, false
	}
	return b.frame, true
}

// Close drops the frame and stops any attached feeder.
func (b *FrameBuffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.has = false
	b.frame = detector.Frame{}
	onClose := b.onClose
	b.mu.Unlock()

	if onClose != nil {
		return onClose()
	}
	return nil
}
