package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a recorded pipeline run in a transport-friendly format.
type Run struct {
	ID              string  `json:"id"`
	Term            string  `json:"term"`
	Status          string  `json:"status"`
	Target          Target  `json:"target"`
	Seed            int64   `json:"seed"`
	Candidates      int     `json:"candidates"`
	Selected        int     `json:"selected"`
	ClipsUsed       int     `json:"clipsUsed"`
	FailedClips     int     `json:"failedClips"`
	BytesDownloaded int64   `json:"bytesDownloaded"`
	OutputPath      string  `json:"outputPath,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	StartedAt       string  `json:"startedAt,omitempty"`
	FinishedAt      string  `json:"finishedAt,omitempty"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
}

// Target mirrors the requested output shape.
type Target struct {
	DurationSeconds int     `json:"durationSeconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FrameRate       float64 `json:"frameRate"`
	Vertical        bool    `json:"vertical"`
}

// RunListResponse wraps GET /runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps GET /runs/{id}.
type RunResponse struct {
	Run Run `json:"run"`
}

// HealthResponse wraps GET /health.
type HealthResponse struct {
	Status  string         `json:"status"`
	UptimeS int64          `json:"uptimeSeconds"`
	Counts  map[string]int `json:"counts"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}
