// api-gateway/sse.go
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventStream pushes named server-sent-event frames to one client. Frames
// go out as they occur, never buffered for replay; the response flusher is
// hit after every frame so proxies don't batch them.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &eventStream{w: w, flusher: flusher}, nil
}

// send writes one frame. Write errors are swallowed: a dead client is
// detected through the request context, not here.
func (s *eventStream) send(event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b)
	s.flusher.Flush()
}
