// fetcher/probe.go
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"youtube-downloader-api/shared"
)

// VideoInfo is the subset of yt-dlp's metadata dump the service exposes
type VideoInfo struct {
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Channel   string  `json:"channel"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	ViewCount int64   `json:"view_count"`
	Height    int     `json:"height"`
	Formats   []struct {
		VCodec string `json:"vcodec"`
		Height int    `json:"height"`
	} `json:"formats"`
}

// Author returns the uploader, falling back to the channel name
func (v *VideoInfo) Author() string {
	if v.Uploader != "" {
		return v.Uploader
	}
	return v.Channel
}

// AvailableHeights lists the distinct vertical resolutions that carry
// video, highest first
func (v *VideoInfo) AvailableHeights() []int {
	seen := make(map[int]bool)
	for _, f := range v.Formats {
		if f.VCodec != "none" && f.Height > 0 {
			seen[f.Height] = true
		}
	}
	heights := make([]int, 0, len(seen))
	for h := range seen {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	return heights
}

// ProbeURL fetches a video's metadata without downloading anything.
// The raw process output stays in the error for logging; handlers map it to
// a short user-facing message.
func ProbeURL(ctx context.Context, cfg *shared.Config, url string) (*VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.YtDlpPath, "--dump-json", "--no-download", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("probe %s: %v: %s", url, err, strings.TrimSpace(stderr.String()))
	}

	var info VideoInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("probe %s: parse metadata: %w", url, err)
	}
	return &info, nil
}

// Version reports the external tool's version string
func Version(ctx context.Context, cfg *shared.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, cfg.YtDlpPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// FFmpegAvailable reports whether the configured ffmpeg binary can be found
func FFmpegAvailable(cfg *shared.Config) bool {
	_, err := exec.LookPath(cfg.FFmpegPath)
	return err == nil
}

// SanitizeTitle strips characters that are unsafe in a download file name
func SanitizeTitle(title string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, title))
}

// FormatDuration renders seconds as H:MM:SS, or M:SS under an hour
func FormatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// FormatViewCount renders a count with comma grouping ("1,234,567")
func FormatViewCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		s = s[1:]
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if n < 0 {
		return "-" + b.String()
	}
	return b.String()
}
