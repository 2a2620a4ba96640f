// services/sse_command_service.go
package services

import (
	"bufio"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamCommandsSSE keeps a connected game bridge on a live event stream so
// it can fetch queued commands the moment one appears instead of waiting for
// its poll interval. Also carries "requestTargets" when an admin asks the
// plugins to re-register their target vocabulary.
func (s *RewardService) StreamCommandsSSE(c *fiber.Ctx) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	events := s.Notifier.Subscribe()
	log.Printf("[SSE] Bridge connected (%d total)", s.Notifier.Connected())

	// Use fasthttp stream writer (THIS replaces Flush)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.Notifier.Unsubscribe(events)

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case event := <-events:
				fmt.Fprintf(w, "event: %s\ndata: {}\n\n", event)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
