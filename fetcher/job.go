// fetcher/job.go
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"youtube-downloader-api/shared"
)

// ErrCancelled marks a job terminated by its caller (client disconnect)
var ErrCancelled = errors.New("job cancelled")

// Request describes one fetch job. Immutable once created.
type Request struct {
	URL     string
	Kind    shared.MediaKind
	Quality shared.Quality
}

// Result is the terminal outcome of a successful job
type Result struct {
	Path string
}

// Job owns a single yt-dlp invocation: it builds the argument list from the
// request, spawns the process, feeds both output streams through one
// ProgressParser and resolves to a Result or an error. Cancel the context
// passed to Start to terminate the process early.
type Job struct {
	ID         string
	req        Request
	cfg        *shared.Config
	outputPath string
	cancel     context.CancelFunc

	events chan shared.ProgressEvent
	done   chan struct{}

	lastOutput atomic.Int64 // unix nanos of the most recent process output
	stalled    atomic.Bool

	mu     sync.Mutex
	state  shared.JobState
	result Result
	err    error
}

// BuildArgs constructs the yt-dlp argument list for a request. Audio jobs
// extract to MP3 at a fixed 320kbps; video jobs pick a format selector from
// the quality hint and force an MP4 container. --newline keeps progress
// output line-buffered so it can be parsed incrementally.
func BuildArgs(cfg *shared.Config, req Request, outputPath string) []string {
	if req.Kind == shared.MediaKindVideo {
		var selector string
		switch req.Quality {
		case shared.QualityBest:
			selector = "bestvideo+bestaudio/best"
		case shared.Quality720:
			selector = "bestvideo[height<=720]+bestaudio/best[height<=720]/best"
		default:
			selector = "bestvideo[height<=1080]+bestaudio/best[height<=1080]/best"
		}
		return []string{
			"-f", selector,
			"--merge-output-format", "mp4",
			"--ffmpeg-location", cfg.FFmpegPath,
			"--newline",
			"--progress",
			"-o", outputPath,
			req.URL,
		}
	}
	// yt-dlp writes the intermediate download under its native extension
	// before ffmpeg produces the mp3, hence the %(ext)s template.
	template := strings.TrimSuffix(outputPath, ".mp3") + ".%(ext)s"
	return []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "320K",
		"--ffmpeg-location", cfg.FFmpegPath,
		"--newline",
		"--progress",
		"-o", template,
		req.URL,
	}
}

// Start spawns the external fetch process for req. The returned job's
// Events channel carries parsed progress until the process terminates;
// Wait blocks for the terminal outcome.
func Start(ctx context.Context, cfg *shared.Config, req Request) (*Job, error) {
	jobID := uuid.New().String()
	outputPath := filepath.Join(cfg.DownloadsDir, jobID+"."+req.Kind.Ext())

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, cfg.YtDlpPath, BuildArgs(cfg, req, outputPath)...)
	// Child helpers (ffmpeg) can outlive a killed yt-dlp and keep the output
	// pipes open; force them closed shortly after cancellation.
	cmd.WaitDelay = 5 * time.Second

	j := &Job{
		ID:         jobID,
		req:        req,
		cfg:        cfg,
		outputPath: outputPath,
		cancel:     cancel,
		events:     make(chan shared.ProgressEvent, 64),
		done:       make(chan struct{}),
		state:      shared.JobStateCreated,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("spawn %s: %w", cfg.YtDlpPath, err)
	}
	// yt-dlp resolves the watch page before its first [download] line; the
	// job advances to downloading when the first percent arrives.
	j.state = shared.JobStateFetchingMetadata
	j.lastOutput.Store(time.Now().UnixNano())

	parser := NewProgressParser(req.Kind)
	var parserMu sync.Mutex
	var readers sync.WaitGroup
	readers.Add(2)
	go j.readStream(ctx, stdout, parser, &parserMu, &readers)
	go j.readStream(ctx, stderr, parser, &parserMu, &readers)

	if cfg.StallTimeout > 0 {
		go j.watchdog(ctx)
	}
	go j.wait(ctx, cmd, &readers)

	log.Printf("INFO: Job %s started: kind=%s quality=%s url=%s", jobID, req.Kind, req.Quality, req.URL)
	return j, nil
}

// Events returns the job's progress stream. Closed when the job terminates.
func (j *Job) Events() <-chan shared.ProgressEvent {
	return j.events
}

// Wait blocks until the job reaches a terminal state
func (j *Job) Wait() (Result, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Cancel sends a termination signal to the external process. Idempotent.
func (j *Job) Cancel() {
	j.cancel()
}

// State reports the job's current lifecycle state
func (j *Job) State() shared.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// OutputPath is the file the process writes its final artifact to
func (j *Job) OutputPath() string {
	return j.outputPath
}

// readStream pumps one output stream through the shared parser. Chunked
// reads, not line scans: a percent token may span two reads and the parser
// owns the buffering.
func (j *Job) readStream(ctx context.Context, r io.Reader, parser *ProgressParser, parserMu *sync.Mutex, readers *sync.WaitGroup) {
	defer readers.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			j.lastOutput.Store(time.Now().UnixNano())
			parserMu.Lock()
			events := parser.Feed(buf[:n])
			parserMu.Unlock()
			for _, ev := range events {
				j.emit(ctx, ev)
			}
		}
		if err != nil {
			return
		}
	}
}

func (j *Job) emit(ctx context.Context, ev shared.ProgressEvent) {
	switch ev.Phase {
	case shared.PhaseDownload:
		j.setState(shared.JobStateDownloading)
	case shared.PhaseConvert:
		j.setState(shared.JobStateConverting)
	}
	select {
	case j.events <- ev:
	case <-ctx.Done():
	}
}

// watchdog kills the process when it produces no output for the configured
// stall timeout, so a hung fetch cannot pin its job forever
func (j *Job) watchdog(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.done:
			return
		case <-ticker.C:
			last := time.Unix(0, j.lastOutput.Load())
			if time.Since(last) > j.cfg.StallTimeout {
				log.Printf("WARN: Job %s stalled, no output for %s; killing process", j.ID, j.cfg.StallTimeout)
				j.stalled.Store(true)
				j.cancel()
				return
			}
		}
	}
}

// wait collects the process exit, resolves the terminal outcome and closes
// the event channel
func (j *Job) wait(ctx context.Context, cmd *exec.Cmd, readers *sync.WaitGroup) {
	readers.Wait()
	waitErr := cmd.Wait()

	j.mu.Lock()
	switch {
	case j.stalled.Load():
		j.state = shared.JobStateFailed
		j.err = fmt.Errorf("fetch process produced no output for %s", j.cfg.StallTimeout)
	case ctx.Err() != nil:
		j.state = shared.JobStateCancelled
		j.err = ErrCancelled
	case waitErr != nil:
		j.state = shared.JobStateFailed
		j.err = fmt.Errorf("fetch process failed: %w", waitErr)
	default:
		if _, statErr := os.Stat(j.outputPath); statErr != nil {
			j.state = shared.JobStateFailed
			j.err = fmt.Errorf("fetch process exited cleanly but output file is missing")
		} else {
			j.state = shared.JobStateComplete
			j.result = Result{Path: j.outputPath}
		}
	}
	state, err := j.state, j.err
	j.mu.Unlock()

	if err != nil {
		j.removePartials()
		log.Printf("INFO: Job %s finished: state=%s err=%v", j.ID, state, err)
	} else {
		log.Printf("INFO: Job %s finished: state=%s path=%s", j.ID, state, j.outputPath)
	}

	close(j.events)
	close(j.done)
	j.cancel()
}

func (j *Job) setState(state shared.JobState) {
	j.mu.Lock()
	if !j.state.IsTerminal() {
		j.state = state
	}
	j.mu.Unlock()
}

// removePartials best-effort deletes everything the job wrote. The output
// path stem is this job's uuid, so the glob cannot touch other jobs' files.
func (j *Job) removePartials() {
	stem := strings.TrimSuffix(j.outputPath, filepath.Ext(j.outputPath))
	matches, err := filepath.Glob(stem + ".*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			log.Printf("WARN: Failed to remove partial file %s: %v", m, err)
		}
	}
}
