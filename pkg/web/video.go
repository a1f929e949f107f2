package web

import (
	"bufio"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/AGKireev/Adeept-RaspClaws/pkg/dispatch"
)

const mjpegBoundary = "frame"

// handleVideoFeed streams camera frames as multipart MJPEG until the
// client goes away or the server shuts down.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	if s.deps.Frames == nil {
		return fail(c, dispatch.ErrUnavailable)
	}

	frames, unsubscribe := s.deps.Frames.Subscribe()
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	remote := c.IP()
	s.log.Debug("video stream opened", "remote", remote)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		defer s.log.Debug("video stream closed", "remote", remote)
		for {
			select {
			case <-s.done:
				return
			case frame := <-frames:
				if err := writeFrame(w, frame); err != nil {
					return
				}
			}
		}
	})
	return nil
}

// writeFrame writes one multipart part and flushes it to the client.
func writeFrame(w *bufio.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}
