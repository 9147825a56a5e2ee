package stream

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// KeepAlive is how often an idle stream receives a comment line so proxies
// keep the connection open.
var KeepAlive = 25 * time.Second

// WriteEvent writes ev in text/event-stream framing.
func WriteEvent(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	if ev.Name != "" {
		buf.WriteString("event: ")
		buf.WriteString(ev.Name)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(ev.Data)
	buf.WriteString("\n\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// Serve streams events to the client until the request ends or events is
// closed. Initial events are written before anything read from events.
func Serve(c echo.Context, events <-chan Event, initial ...Event) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.WriteHeader(http.StatusOK)

	for _, ev := range initial {
		if err := WriteEvent(res, ev); err != nil {
			c.Logger().Error(err)
			return err
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := res.Write([]byte(": ping\n\n")); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := WriteEvent(res, ev); err != nil {
				c.Logger().Error(err)
				return err
			}
		}
		flusher.Flush()
	}
}
