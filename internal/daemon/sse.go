package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// eventStream writes server-sent events to one client.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// openStream switches w to an event stream. The server write timeout is
// lifted for the lifetime of the stream.
func (s *apiServer) openStream(w http.ResponseWriter) (*eventStream, bool) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !isUnsupported(err) {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	stream := &eventStream{w: w, rc: rc}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetryMillis); err != nil {
		return nil, false
	}
	if err := stream.flush(); err != nil {
		return nil, false
	}
	return stream, true
}

func (e *eventStream) send(event, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if id != "" {
		if _, err := fmt.Fprintf(e.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return e.flush()
}

func (e *eventStream) flush() error {
	if err := e.rc.Flush(); err != nil && !isUnsupported(err) {
		return err
	}
	return nil
}

func isUnsupported(err error) bool {
	return errors.Is(err, http.ErrNotSupported)
}
