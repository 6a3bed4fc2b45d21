package ws

import (
	"context"
	"log"
	"time"
)

// RunSweeps starts the two timer-driven maintenance loops: the idle-session
// sweep and the typing sweep. Both run on fixed intervals independent of
// traffic and stop when the context is cancelled.
func (h *Hub) RunSweeps(ctx context.Context, idleEvery, idleMax, typingEvery, typingTTL time.Duration) {
	go func() {
		ticker := time.NewTicker(idleEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.sweepIdle(idleMax); n > 0 {
					log.Printf("idle sweep evicted %d connections", n)
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(typingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sweepTyping(typingTTL)
			}
		}
	}()
}
