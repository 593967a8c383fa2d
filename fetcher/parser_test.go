package fetcher

import (
	"testing"

	"youtube-downloader-api/shared"
)

func feedLines(p *ProgressParser, lines ...string) []shared.ProgressEvent {
	var events []shared.ProgressEvent
	for _, line := range lines {
		events = append(events, p.Feed([]byte(line+"\n"))...)
	}
	return events
}

func TestProgressParser_MonotonicWithinDownload(t *testing.T) {
	p := NewProgressParser(shared.MediaKindVideo)
	events := feedLines(p,
		"[download]  10.0% of 10.00MiB at 1.00MiB/s",
		"[download]  10.0% of 10.00MiB at 1.00MiB/s",
		"[download]   5.0% of 10.00MiB at 1.00MiB/s",
		"[download]  25.5% of 10.00MiB at 1.00MiB/s",
		"[download]  25.5% of 10.00MiB at 1.00MiB/s",
		"[download]  90.0% of 10.00MiB at 1.00MiB/s",
	)

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	last := -1
	for _, ev := range events {
		if ev.Phase != shared.PhaseDownload {
			t.Errorf("expected download phase, got %s", ev.Phase)
		}
		if ev.Percent <= last {
			t.Errorf("percent %d not strictly greater than %d", ev.Percent, last)
		}
		last = ev.Percent
	}
}

func TestProgressParser_NonDecreasingAcrossPhases(t *testing.T) {
	tests := []struct {
		name string
		kind shared.MediaKind
	}{
		{"video", shared.MediaKindVideo},
		{"audio", shared.MediaKindAudio},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := NewProgressParser(test.kind)
			events := feedLines(p,
				"[download]  40.0% of 10.00MiB",
				"[download] 100% of 10.00MiB",
				"[Merger] Merging formats into \"out.mp4\"",
				"[download]  12.0% of 3.00MiB",
			)
			last := -1
			for _, ev := range events {
				if ev.Percent < last {
					t.Errorf("percent regressed: %d after %d (%+v)", ev.Percent, last, events)
				}
				last = ev.Percent
			}
			final := events[len(events)-1]
			if final.Phase != shared.PhaseConvert {
				t.Errorf("expected final phase convert, got %s", final.Phase)
			}
		})
	}
}

func TestProgressParser_ScalesIntoPhaseBudget(t *testing.T) {
	tests := []struct {
		kind        shared.MediaKind
		wantFullPct int
		wantConvert int
	}{
		{shared.MediaKindVideo, 80, 85},
		{shared.MediaKindAudio, 70, 75},
	}
	for _, test := range tests {
		t.Run(string(test.kind), func(t *testing.T) {
			p := NewProgressParser(test.kind)
			events := feedLines(p,
				"[download] 100% of 10.00MiB",
				"[ExtractAudio] Destination: out.mp3",
			)
			if len(events) != 2 {
				t.Fatalf("expected 2 events, got %d", len(events))
			}
			if events[0].Percent != test.wantFullPct {
				t.Errorf("download 100%% scaled to %d, want %d", events[0].Percent, test.wantFullPct)
			}
			if events[1].Percent != test.wantConvert {
				t.Errorf("convert marker percent %d, want %d", events[1].Percent, test.wantConvert)
			}
		})
	}
}

func TestProgressParser_TokenSpansChunks(t *testing.T) {
	p := NewProgressParser(shared.MediaKindVideo)
	var events []shared.ProgressEvent
	events = append(events, p.Feed([]byte("[download]  42"))...)
	events = append(events, p.Feed([]byte(".5% of 10.00MiB\n"))...)

	if len(events) != 1 {
		t.Fatalf("expected 1 event after line completion, got %d", len(events))
	}
	if events[0].Phase != shared.PhaseDownload {
		t.Errorf("expected download phase, got %s", events[0].Phase)
	}
	// 42.5 scaled into [0,80] and rounded
	if events[0].Percent != 34 {
		t.Errorf("expected percent 34, got %d", events[0].Percent)
	}
}

func TestProgressParser_CarriageReturnTerminatesLine(t *testing.T) {
	p := NewProgressParser(shared.MediaKindAudio)
	events := p.Feed([]byte("[download]  10.0% of 1MiB\r[download]  20.0% of 1MiB\r"))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestProgressParser_UnrecognizedInputIsInert(t *testing.T) {
	p := NewProgressParser(shared.MediaKindAudio)
	events := feedLines(p,
		"[youtube] abc123: Downloading webpage",
		"WARNING: unable to obtain file audio codec",
		"random noise without markers",
		"",
	)
	if len(events) != 0 {
		t.Fatalf("expected no events for unrecognized input, got %v", events)
	}
}

func TestProgressParser_ConvertMarkers(t *testing.T) {
	markers := []string{
		"[ExtractAudio] Destination: x.mp3",
		"[VideoConvertor] converting",
		"[Merger] Merging formats",
		"Converting audio",
		"Destination: final.mp4",
	}
	for _, line := range markers {
		p := NewProgressParser(shared.MediaKindVideo)
		events := feedLines(p, line)
		if len(events) != 1 || events[0].Phase != shared.PhaseConvert {
			t.Errorf("line %q: expected one convert event, got %v", line, events)
		}
	}
}

// yt-dlp announces the destination file before the first percent of a
// download; that line must not be mistaken for the conversion hand-off.
func TestProgressParser_RealisticTranscriptKeepsDownloadPhase(t *testing.T) {
	p := NewProgressParser(shared.MediaKindAudio)
	events := feedLines(p,
		"[youtube] dQw4w9WgXcQ: Downloading webpage",
		"[info] dQw4w9WgXcQ: Downloading 1 format(s): 251",
		"[download] Destination: downloads/1f2e3d4c.webm",
		"[download]   0.5% of 3.30MiB at 512.00KiB/s ETA 00:06",
		"[download]  25.0% of 3.30MiB at 512.00KiB/s ETA 00:04",
		"[download]  75.0% of 3.30MiB at 512.00KiB/s ETA 00:01",
		"[download] 100% of 3.30MiB in 00:06",
		"[ExtractAudio] Destination: downloads/1f2e3d4c.mp3",
	)

	var downloads int
	last := -1
	for _, ev := range events {
		if ev.Phase == shared.PhaseDownload {
			downloads++
		}
		if ev.Percent < last {
			t.Errorf("percent regressed: %d after %d (%+v)", ev.Percent, last, events)
		}
		last = ev.Percent
	}
	if downloads != 4 {
		t.Fatalf("expected 4 download events, got %d: %v", downloads, events)
	}
	final := events[len(events)-1]
	if final.Phase != shared.PhaseConvert || final.Percent != 75 {
		t.Errorf("expected transcript to end at convert 75, got %+v", final)
	}
}

func TestProgressParser_DropsPercentsAfterConvert(t *testing.T) {
	p := NewProgressParser(shared.MediaKindVideo)
	events := feedLines(p,
		"[download]  60.0% of 10.00MiB",
		"[Merger] Merging formats into \"out.mp4\"",
		"size=  1024kB time=00:00:10.00 bitrate= 838.9kbits/s speed=99.9x 50.0%",
	)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(events), events)
	}
	if events[1].Phase != shared.PhaseConvert {
		t.Errorf("expected convert as last event, got %s", events[1].Phase)
	}
}

func TestProgressParser_Flush(t *testing.T) {
	p := NewProgressParser(shared.MediaKindVideo)
	if events := p.Feed([]byte("[download]  33.0% of 10MiB")); len(events) != 0 {
		t.Fatalf("incomplete line must not emit, got %v", events)
	}
	events := p.Flush()
	if len(events) != 1 {
		t.Fatalf("expected 1 event from flush, got %d", len(events))
	}
	if p.Flush() != nil {
		t.Error("second flush must be empty")
	}
}
