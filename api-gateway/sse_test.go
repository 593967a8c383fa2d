package main

import (
	"net/http/httptest"
	"testing"
)

func TestEventStream_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	stream, err := newEventStream(rec)
	if err != nil {
		t.Fatal(err)
	}

	stream.send("status", map[string]string{"message": "hello"})
	stream.send("progress", map[string]int{"percent": 42})

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, expected text/event-stream", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, expected no-cache", cc)
	}

	want := "event: status\ndata: {\"message\":\"hello\"}\n\nevent: progress\ndata: {\"percent\":42}\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("frame body mismatch:\ngot  %q\nwant %q", got, want)
	}
}
