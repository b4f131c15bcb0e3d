package job

import (
	"time"

	"github.com/xraph/conveyor/id"
)

// Job represents a unit of work exchanged with the job server.
// JSON field names follow the wire protocol and must not change.
type Job struct {
	// Required fields.
	Jid  string `json:"jid"`
	Type string `json:"jobtype"`
	Args []any  `json:"args"`

	// Optional fields. Retry is a pointer so an explicit zero
	// ("never retry") survives serialization.
	Queue      string         `json:"queue,omitempty"`
	Priority   uint8          `json:"priority,omitempty"`
	Retry      *int           `json:"retry,omitempty"`
	ReserveFor int            `json:"reserve_for,omitempty"`
	At         string         `json:"at,omitempty"`
	Backtrace  int            `json:"backtrace,omitempty"`
	Custom     map[string]any `json:"custom,omitempty"`

	// Read-only fields, set by the server or at build time.
	CreatedAt  string   `json:"created_at,omitempty"`
	EnqueuedAt string   `json:"enqueued_at,omitempty"`
	Failure    *Failure `json:"failure,omitempty"`
}

// Failure records the most recent execution failure of a job.
// The server fills the retry bookkeeping; clients report errtype,
// message, and backtrace via FAIL.
type Failure struct {
	RetryCount     int      `json:"retry_count"`
	RetryRemaining int      `json:"remaining"`
	FailedAt       string   `json:"failed_at"`
	NextAt         string   `json:"next_at,omitempty"`
	ErrorMessage   string   `json:"message,omitempty"`
	ErrorType      string   `json:"errtype,omitempty"`
	Backtrace      []string `json:"backtrace,omitempty"`
}

// DefaultRetry is the retry budget assigned by New.
const DefaultRetry = 25

// New builds a wire-ready job for the given jobtype and positional args.
// It fills a generated jid, queue "default", the default retry budget, and
// a created_at stamp. Adjust fields directly before pushing:
//
//	j := job.New("resize_image", "s3://bucket/key", 1024)
//	j.Queue = "images"
//	j.Custom = map[string]any{"tenant": "acme"}
func New(jobtype string, args ...any) *Job {
	retry := DefaultRetry
	if args == nil {
		args = []any{}
	}

	return &Job{
		Jid:       id.NewJobID().String(),
		Type:      jobtype,
		Args:      args,
		Queue:     "default",
		Retry:     &retry,
		CreatedAt: Nowstamp(),
	}
}

// RunAt schedules the job for execution at or after t.
func (j *Job) RunAt(t time.Time) *Job {
	j.At = t.UTC().Format(time.RFC3339Nano)

	return j
}

// Nowstamp returns the current UTC time in the timestamp format the
// server expects.
func Nowstamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
