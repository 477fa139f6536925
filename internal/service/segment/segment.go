// Package segment names the audio segments buffered during a session.
package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out monotonically numbered segment IDs for one session.
type Generator struct {
	sessionId string
	counter   uint64
}

// New creates a generator for sessionId.
func New(sessionId string) *Generator {
	return &Generator{sessionId: sessionId}
}

// Next returns the next segment ID, "<session>-seg-N" starting at 1.
func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", g.sessionId, n)
}

// Issued returns how many IDs were handed out.
func (g *Generator) Issued() uint64 {
	return atomic.LoadUint64(&g.counter)
}
