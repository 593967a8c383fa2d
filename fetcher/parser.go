// fetcher/parser.go
package fetcher

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"youtube-downloader-api/shared"
)

// percentRe matches yt-dlp's progress percentage anywhere in a line
var percentRe = regexp.MustCompile(`(\d+\.?\d*)%`)

// strongConvertMarkers are prefixes yt-dlp only prints when it hands off
// to ffmpeg for extraction, conversion or merging
var strongConvertMarkers = []string{
	"[ExtractAudio]",
	"[VideoConvertor]",
	"[Merger]",
}

// weakConvertMarkers also appear on download lines: yt-dlp announces
// "[download] Destination: <file>" before the first percent of every
// download, so these only count outside a [download] line
var weakConvertMarkers = []string{
	"Converting",
	"Destination:",
}

// Download percents are rescaled into a sub-range so the visible percent
// keeps room for the conversion step and never regresses across phases.
const (
	videoDownloadCap = 80
	audioDownloadCap = 70
	videoConvertMark = 85
	audioConvertMark = 75
)

// ProgressParser turns raw yt-dlp output into structured progress events.
// Chunks may split lines at arbitrary points; the parser buffers until a
// full line is available. Unrecognized output is dropped, never an error.
// One parser instance serves both output streams of a single job, so the
// monotonicity rule doubles as cross-stream de-duplication.
type ProgressParser struct {
	kind        shared.MediaKind
	buf         []byte
	lastPercent float64
	converting  bool
}

// NewProgressParser creates a parser for one job of the given kind
func NewProgressParser(kind shared.MediaKind) *ProgressParser {
	return &ProgressParser{kind: kind, lastPercent: 0}
}

// Feed consumes one output chunk and returns the events for every complete
// line it closes. yt-dlp rewrites progress lines with bare carriage returns
// when not line-buffered, so both \r and \n terminate a line.
func (p *ProgressParser) Feed(chunk []byte) []shared.ProgressEvent {
	p.buf = append(p.buf, chunk...)
	var events []shared.ProgressEvent
	for {
		i := bytes.IndexAny(p.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(p.buf[:i])
		p.buf = p.buf[i+1:]
		if ev, ok := p.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush drains a trailing line that arrived without a terminator
func (p *ProgressParser) Flush() []shared.ProgressEvent {
	if len(p.buf) == 0 {
		return nil
	}
	line := string(p.buf)
	p.buf = nil
	if ev, ok := p.parseLine(line); ok {
		return []shared.ProgressEvent{ev}
	}
	return nil
}

func (p *ProgressParser) parseLine(line string) (shared.ProgressEvent, bool) {
	if isConvertLine(line) {
		p.converting = true
		return shared.ProgressEvent{
			Phase:   shared.PhaseConvert,
			Percent: p.convertMark(),
			Message: p.convertMessage(),
		}, true
	}

	// Percent tokens after the conversion hand-off refer to ffmpeg's own
	// output; forwarding them would rewind the visible percent.
	if p.converting {
		return shared.ProgressEvent{}, false
	}

	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return shared.ProgressEvent{}, false
	}
	raw, err := strconv.ParseFloat(m[1], 64)
	if err != nil || raw > 100 {
		return shared.ProgressEvent{}, false
	}
	// Forward only strictly increasing percents. yt-dlp re-prints the same
	// value many times and mirrors lines on stderr.
	if raw <= p.lastPercent {
		return shared.ProgressEvent{}, false
	}
	p.lastPercent = raw

	limit := float64(p.downloadCap())
	scaled := math.Min(raw*limit/100, limit)
	return shared.ProgressEvent{
		Phase:   shared.PhaseDownload,
		Percent: int(math.Round(scaled)),
		Message: fmt.Sprintf("Downloading %d%%", int(math.Round(raw))),
	}, true
}

func isConvertLine(line string) bool {
	for _, marker := range strongConvertMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	if strings.HasPrefix(strings.TrimSpace(line), "[download]") {
		return false
	}
	for _, marker := range weakConvertMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func (p *ProgressParser) downloadCap() int {
	if p.kind == shared.MediaKindVideo {
		return videoDownloadCap
	}
	return audioDownloadCap
}

func (p *ProgressParser) convertMark() int {
	if p.kind == shared.MediaKindVideo {
		return videoConvertMark
	}
	return audioConvertMark
}

func (p *ProgressParser) convertMessage() string {
	if p.kind == shared.MediaKindVideo {
		return "Merging video and audio..."
	}
	return "Converting to MP3..."
}
