// shared/job.go
package shared

import "fmt"

// MediaKind selects the output container for a fetch job
type MediaKind string

const (
	MediaKindAudio MediaKind = "mp3"
	MediaKindVideo MediaKind = "mp4"
)

// ParseMediaKind maps the wire-level format parameter to a MediaKind.
// An empty value defaults to audio, matching the public API contract.
func ParseMediaKind(s string) (MediaKind, error) {
	switch s {
	case "", "mp3":
		return MediaKindAudio, nil
	case "mp4":
		return MediaKindVideo, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// Ext returns the output file extension without the dot
func (k MediaKind) Ext() string {
	return string(k)
}

// Quality is the client's resolution hint for video jobs
type Quality string

const (
	Quality720  Quality = "720"
	Quality1080 Quality = "1080"
	QualityBest Quality = "best"
)

// ParseQuality maps the wire-level quality parameter to a Quality.
// Unknown or absent values fall back to 1080p, the service default.
func ParseQuality(s string) Quality {
	switch s {
	case "720":
		return Quality720
	case "best":
		return QualityBest
	default:
		return Quality1080
	}
}

// Phase identifies a stage of a fetch job as exposed to clients
type Phase string

const (
	PhaseInfo     Phase = "info"
	PhaseDownload Phase = "download"
	PhaseConvert  Phase = "convert"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

// ProgressEvent is one structured update parsed from the fetch process output
type ProgressEvent struct {
	Phase   Phase  `json:"phase"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// JobState tracks a fetch job through its lifecycle
type JobState string

const (
	JobStateCreated          JobState = "created"
	JobStateFetchingMetadata JobState = "fetching_metadata"
	JobStateDownloading      JobState = "downloading"
	JobStateConverting       JobState = "converting"
	JobStateComplete         JobState = "complete"
	JobStateFailed           JobState = "failed"
	JobStateCancelled        JobState = "cancelled"
)

// String returns the string representation of JobState
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions can leave the state
func (s JobState) IsTerminal() bool {
	return s == JobStateComplete || s == JobStateFailed || s == JobStateCancelled
}
