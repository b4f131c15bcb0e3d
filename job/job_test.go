package job_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xraph/conveyor/job"
)

func TestNew_Defaults(t *testing.T) {
	j := job.New("resize_image", "s3://bucket/key", 1024)

	if !strings.HasPrefix(j.Jid, "job_") {
		t.Errorf("jid = %q, want job_ prefix", j.Jid)
	}
	if j.Type != "resize_image" {
		t.Errorf("jobtype = %q, want %q", j.Type, "resize_image")
	}
	if len(j.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(j.Args))
	}
	if j.Queue != "default" {
		t.Errorf("queue = %q, want %q", j.Queue, "default")
	}
	if j.Retry == nil || *j.Retry != job.DefaultRetry {
		t.Errorf("retry = %v, want %d", j.Retry, job.DefaultRetry)
	}
	if j.CreatedAt == "" {
		t.Error("expected created_at to be stamped")
	}
	if _, err := time.Parse(time.RFC3339Nano, j.CreatedAt); err != nil {
		t.Errorf("created_at %q is not RFC3339: %v", j.CreatedAt, err)
	}
}

func TestNew_NoArgs(t *testing.T) {
	j := job.New("tick")
	if j.Args == nil {
		t.Fatal("args should serialize as [], not null")
	}

	raw, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"args":[]`) {
		t.Errorf("expected empty args array in %s", raw)
	}
}

func TestJob_WireFieldNames(t *testing.T) {
	j := job.New("send_email", "to@example.com")
	j.Priority = 8
	j.Custom = map[string]any{"tenant": "acme"}

	raw, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, want := range []string{"jid", "jobtype", "args", "queue", "priority", "retry", "custom", "created_at"} {
		if _, ok := fields[want]; !ok {
			t.Errorf("expected wire field %q in %s", want, raw)
		}
	}
	if _, ok := fields["at"]; ok {
		t.Error("unscheduled job should omit the at field")
	}
}

func TestJob_RunAt(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := job.New("reminder").RunAt(at)

	parsed, err := time.Parse(time.RFC3339Nano, j.At)
	if err != nil {
		t.Fatalf("at %q is not RFC3339: %v", j.At, err)
	}
	if !parsed.Equal(at) {
		t.Errorf("at = %v, want %v", parsed, at)
	}
}

func TestJob_ExplicitZeroRetrySurvives(t *testing.T) {
	zero := 0
	j := job.New("once")
	j.Retry = &zero

	raw, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"retry":0`) {
		t.Errorf("explicit retry 0 dropped from %s", raw)
	}
}

func TestFailure_RoundTrip(t *testing.T) {
	payload := `{"jid":"job_x","jobtype":"t","args":[],"failure":{"retry_count":2,"remaining":23,"failed_at":"2026-01-01T00:00:00Z","errtype":"TimeoutError","message":"took too long","backtrace":["a.go:1"]}}`

	var j job.Job
	if err := json.Unmarshal([]byte(payload), &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if j.Failure == nil {
		t.Fatal("expected failure to be decoded")
	}
	if j.Failure.ErrorType != "TimeoutError" {
		t.Errorf("errtype = %q, want %q", j.Failure.ErrorType, "TimeoutError")
	}
	if j.Failure.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", j.Failure.RetryCount)
	}
}
