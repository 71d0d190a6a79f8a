package history

import "time"

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut}

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Run is one recorded pipeline execution.
type Run struct {
	ID              string     `json:"id"`
	Term            string     `json:"term"`
	Status          Status     `json:"status"`
	DurationSeconds int        `json:"duration_seconds"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	FrameRate       float64    `json:"frame_rate"`
	Vertical        bool       `json:"vertical"`
	Seed            int64      `json:"seed"`
	Candidates      int        `json:"candidates"`
	Selected        int        `json:"selected"`
	ClipsUsed       int        `json:"clips_used"`
	FailedClips     int        `json:"failed_clips"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	OutputPath      string     `json:"output_path,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Elapsed returns how long the run took, or has been running.
func (r Run) Elapsed() time.Duration {
	end := time.Now()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	if r.StartedAt.IsZero() || end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}

// Outcome carries the fields written when a run finishes.
type Outcome struct {
	Status          Status
	Candidates      int
	Selected        int
	ClipsUsed       int
	FailedClips     int
	BytesDownloaded int64
	OutputPath      string
	ErrorMessage    string
}
