package httphook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.JobStarted         = (*Extension)(nil)
	_ ext.JobCompleted       = (*Extension)(nil)
	_ ext.JobFailed          = (*Extension)(nil)
	_ ext.WorkerError        = (*Extension)(nil)
	_ ext.WorkerStateChanged = (*Extension)(nil)
	_ ext.Shutdown           = (*Extension)(nil)
)

// Event is the JSON envelope delivered to the webhook endpoint.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Extension delivers worker lifecycle events to an HTTP endpoint. Each
// lifecycle hook POSTs one JSON [Event]; non-2xx responses are reported
// as errors to the extension registry.
type Extension struct {
	endpoint string
	client   *http.Client
	header   http.Header
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates an Extension that delivers lifecycle events to endpoint.
func New(endpoint string, opts ...Option) *Extension {
	h := &Extension{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		header:   make(http.Header),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "http-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobStarted implements ext.JobStarted.
func (h *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return h.send(ctx, EventJobStarted, newJobPayload(j))
}

// OnJobCompleted implements ext.JobCompleted.
func (h *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return h.send(ctx, EventJobCompleted, &jobCompletedPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return h.send(ctx, EventJobFailed, &jobFailedPayload{
		jobPayload: *newJobPayload(j),
		Error:      jobErr.Error(),
	})
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerError implements ext.WorkerError.
func (h *Extension) OnWorkerError(ctx context.Context, workerErr error) error {
	return h.send(ctx, EventWorkerError, &workerErrorPayload{
		Error: workerErr.Error(),
	})
}

// OnWorkerStateChanged implements ext.WorkerStateChanged.
func (h *Extension) OnWorkerStateChanged(ctx context.Context, from, to string) error {
	return h.send(ctx, EventWorkerStateChanged, &workerStatePayload{
		From: from,
		To:   to,
	})
}

// OnShutdown implements ext.Shutdown.
func (h *Extension) OnShutdown(ctx context.Context) error {
	return h.send(ctx, EventShutdown, struct{}{})
}

// ── Internal helpers ────────────────────────────────

// send POSTs one event to the endpoint if its type is enabled.
func (h *Extension) send(ctx context.Context, eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	body, err := json.Marshal(&Event{
		Type: eventType,
		At:   time.Now().UTC(),
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("conveyor: encode %s webhook: %w", eventType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("conveyor: build %s webhook request: %w", eventType, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range h.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("conveyor: deliver %s webhook: %w", eventType, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("conveyor: %s webhook rejected with %s", eventType, resp.Status)
	}
	return nil
}

// ── Default payload types ───────────────────────────

type jobPayload struct {
	Jid     string `json:"jid"`
	Jobtype string `json:"jobtype"`
	Queue   string `json:"queue"`
}

func newJobPayload(j *job.Job) *jobPayload {
	return &jobPayload{
		Jid:     j.Jid,
		Jobtype: j.Type,
		Queue:   j.Queue,
	}
}

type jobCompletedPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobFailedPayload struct {
	jobPayload
	Error string `json:"error"`
}

type workerErrorPayload struct {
	Error string `json:"error"`
}

type workerStatePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}
