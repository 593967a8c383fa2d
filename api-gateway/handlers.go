// api-gateway/handlers.go
package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"youtube-downloader-api/fetcher"
	"youtube-downloader-api/shared"
)

// server wires the HTTP surface to the session store and fetch subsystem.
// The store is injected so tests (or a multi-instance deployment) can swap
// the backend.
type server struct {
	cfg   *shared.Config
	store shared.SessionStore
	slots chan struct{} // bounds concurrently running fetch processes
}

func newServer(cfg *shared.Config, store shared.SessionStore) *server {
	return &server{
		cfg:   cfg,
		store: store,
		slots: make(chan struct{}, cfg.MaxConcurrent),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// validateRequestURL extracts and checks the url query parameter, writing
// the 400 response itself when the check fails
func validateRequestURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return "", false
	}
	if !isValidYouTubeURL(target) {
		writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return "", false
	}
	return target, true
}

// handleInfo returns video metadata without starting a download
func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	target, ok := validateRequestURL(w, r)
	if !ok {
		return
	}

	log.Printf("INFO: Getting info for: %s", target)
	info, err := fetcher.ProbeURL(r.Context(), s.cfg, target)
	if err != nil {
		log.Printf("ERROR: Info probe failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get video information. Please check the URL and try again.")
		return
	}

	maxHeight := info.Height
	writeJSON(w, http.StatusOK, map[string]any{
		"title":              info.Title,
		"author":             info.Author(),
		"thumbnail":          info.Thumbnail,
		"duration":           fetcher.FormatDuration(info.Duration),
		"viewCount":          fetcher.FormatViewCount(info.ViewCount),
		"availableQualities": info.AvailableHeights(),
		"maxHeight":          maxHeight,
	})
}

// handleDownloadProgress runs one fetch job and streams its progress over
// SSE. Closing the connection cancels the job.
func (s *server) handleDownloadProgress(w http.ResponseWriter, r *http.Request) {
	target, ok := validateRequestURL(w, r)
	if !ok {
		return
	}
	kind, err := shared.ParseMediaKind(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported format")
		return
	}
	quality := shared.ParseQuality(r.URL.Query().Get("quality"))

	stream, err := newEventStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	ctx := r.Context()

	// Bounded concurrency: wait for a slot, telling the client when the
	// service is saturated
	select {
	case s.slots <- struct{}{}:
	default:
		stream.send("status", map[string]any{"message": "Waiting for a free download slot...", "phase": string(shared.PhaseInfo)})
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
	}
	defer func() { <-s.slots }()

	stream.send("status", map[string]any{"message": "Fetching video information...", "phase": string(shared.PhaseInfo)})

	info, err := fetcher.ProbeURL(ctx, s.cfg, target)
	if err != nil {
		log.Printf("ERROR: Probe failed for %s: %v", target, err)
		stream.send("error", map[string]string{"message": "Failed to get video information. Please check the URL and try again."})
		return
	}

	fileName := fetcher.SanitizeTitle(info.Title)
	if fileName == "" {
		fileName = "download"
	}
	fileName += "." + kind.Ext()

	stream.send("info", map[string]any{
		"title":     info.Title,
		"thumbnail": info.Thumbnail,
		"duration":  info.Duration,
	})

	downloadMsg := "Downloading audio..."
	if kind == shared.MediaKindVideo {
		downloadMsg = "Downloading video..."
	}
	stream.send("status", map[string]any{"message": downloadMsg, "phase": string(shared.PhaseDownload), "progress": 0})

	job, err := fetcher.Start(ctx, s.cfg, fetcher.Request{URL: target, Kind: kind, Quality: quality})
	if err != nil {
		log.Printf("ERROR: Failed to start job for %s: %v", target, err)
		stream.send("error", map[string]string{"message": "Failed to start the download. Please try again."})
		return
	}

	for ev := range job.Events() {
		if ctx.Err() != nil {
			// Client is gone; the job context is already cancelled, just
			// drain until the channel closes without pushing frames
			continue
		}
		stream.send("progress", ev)
	}

	result, err := job.Wait()
	if err != nil {
		if errors.Is(err, fetcher.ErrCancelled) {
			log.Printf("INFO: Job %s cancelled by client disconnect", job.ID)
			return
		}
		log.Printf("ERROR: Job %s failed: %v", job.ID, err)
		if ctx.Err() == nil {
			stream.send("error", map[string]string{"message": "Download failed. Please try again."})
		}
		return
	}

	sessionID, err := s.store.Put(result.Path, fileName)
	if err != nil {
		log.Printf("ERROR: Failed to register session for job %s: %v", job.ID, err)
		if rmErr := os.Remove(result.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Printf("WARN: Failed to remove orphaned file %s: %v", result.Path, rmErr)
		}
		stream.send("error", map[string]string{"message": "Download failed. Please try again."})
		return
	}

	stream.send("progress", shared.ProgressEvent{Phase: shared.PhaseComplete, Percent: 100, Message: "Done!"})
	stream.send("complete", map[string]string{"sessionId": sessionID, "fileName": fileName})
	log.Printf("INFO: Download complete: %s (session %s)", fileName, sessionID)
}

// handleDownloadFile serves a completed download once, then deletes it
func (s *server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	sessionID := filepath.Base(r.URL.Path)
	if sessionID == "" || sessionID == "download-file" {
		writeError(w, http.StatusBadRequest, "Session id is required")
		return
	}

	session, err := s.store.Take(sessionID)
	if err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found or expired")
			return
		}
		log.Printf("ERROR: Session lookup failed for %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Failed to resolve session")
		return
	}

	setAttachmentHeaders(w, session.FileName)
	http.ServeFile(w, r, session.FilePath)

	if err := os.Remove(session.FilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: Failed to delete served file %s: %v", session.FilePath, err)
	}
}

// handleDownload is the synchronous audio path: run the whole job, then
// stream the file back without a session
func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	target, ok := validateRequestURL(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-s.slots }()

	info, err := fetcher.ProbeURL(ctx, s.cfg, target)
	if err != nil {
		log.Printf("ERROR: Probe failed for %s: %v", target, err)
		writeError(w, http.StatusInternalServerError, "Failed to get video information. Please check the URL and try again.")
		return
	}

	job, err := fetcher.Start(ctx, s.cfg, fetcher.Request{URL: target, Kind: shared.MediaKindAudio})
	if err != nil {
		log.Printf("ERROR: Failed to start job for %s: %v", target, err)
		writeError(w, http.StatusInternalServerError, "Failed to download video. Please try again.")
		return
	}
	for range job.Events() {
		// progress is not surfaced on this endpoint
	}
	result, err := job.Wait()
	if err != nil {
		log.Printf("ERROR: Job %s failed: %v", job.ID, err)
		if ctx.Err() == nil {
			writeError(w, http.StatusInternalServerError, "Failed to download video. Please try again.")
		}
		return
	}

	fileName := fetcher.SanitizeTitle(info.Title)
	if fileName == "" {
		fileName = "download"
	}
	setAttachmentHeaders(w, fileName+".mp3")
	http.ServeFile(w, r, result.Path)

	if err := os.Remove(result.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: Failed to delete served file %s: %v", result.Path, err)
	}
}

// handleStatus reports service health and external tool availability
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	version, err := fetcher.Version(r.Context(), s.cfg)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "error",
			"error":           err.Error(),
			"ffmpegAvailable": fetcher.FFmpegAvailable(s.cfg),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"ytdlpVersion":    version,
		"ffmpegAvailable": fetcher.FFmpegAvailable(s.cfg),
	})
}

func setAttachmentHeaders(w http.ResponseWriter, fileName string) {
	escaped := url.PathEscape(fileName)
	quoted := strings.ReplaceAll(fileName, `"`, "")
	w.Header().Set("Content-Disposition", `attachment; filename="`+quoted+`"; filename*=UTF-8''`+escaped)
	if strings.HasSuffix(fileName, ".mp4") {
		w.Header().Set("Content-Type", "video/mp4")
	} else {
		w.Header().Set("Content-Type", "audio/mpeg")
	}
}
