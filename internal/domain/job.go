package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// ErrorCode is the fixed taxonomy surfaced to clients.
type ErrorCode string

const (
	ErrorCodeValidation  ErrorCode = "validation_error"
	ErrorCodeConcurrent  ErrorCode = "concurrent"
	ErrorCodeRateLimited ErrorCode = "rate_limited"
	ErrorCodeTimeout     ErrorCode = "timeout"
	ErrorCodeAPI         ErrorCode = "api_error"
	ErrorCodeUnknown     ErrorCode = "unknown"
)

// Panel is one frame of the generated artifact. Ordering is the reading order.
type Panel struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// ResultMeta carries generation metadata attached to every result.
type ResultMeta struct {
	PanelCount  int       `json:"panel_count"`
	GeneratedAt time.Time `json:"generated_at"`
	SourceURL   string    `json:"source_url"`
	Format      string    `json:"format"`
	MaxEdge     int       `json:"max_edge"`
}

// MangaResult is the output of a finished job. On error it is attached as a
// fallback (planned panels, no imagery) so the client always has something
// to render.
type MangaResult struct {
	Title     string     `json:"title"`
	Panels    []Panel    `json:"panels"`
	ImageURLs []string   `json:"image_urls"`
	Meta      ResultMeta `json:"meta"`
}

// Job encapsulates the lifecycle of one manga generation request.
//
// The runner is the only component that mutates Status, Progress, Result and
// Error; the store persists them without interpretation; the HTTP surface
// creates (submission) or reads (status) records.
type Job struct {
	ID           string
	ClientID     string
	UserID       string
	Status       JobStatus
	Progress     int
	Request      MangaRequest
	Result       *MangaResult
	ErrorCode    ErrorCode
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
