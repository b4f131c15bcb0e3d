package client

import (
	"errors"
	"reflect"
)

// Backtracer lets an error carry stack lines for the FAIL payload.
// The middleware package's panic recovery produces errors implementing
// this so a panicking job reports where it blew up.
type Backtracer interface {
	Backtrace() []string
}

// maxBacktraceLines caps what gets sent to the server per failure.
const maxBacktraceLines = 30

// failurePayload builds the FAIL document for a job error.
func failurePayload(jid string, jobErr error) map[string]any {
	payload := map[string]any{
		"jid":     jid,
		"errtype": errorType(jobErr),
		"message": errorMessage(jobErr),
	}

	var bt Backtracer
	if errors.As(jobErr, &bt) {
		lines := bt.Backtrace()
		if len(lines) > maxBacktraceLines {
			lines = lines[:maxBacktraceLines]
		}
		payload["backtrace"] = lines
	}

	return payload
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown"
	}

	return err.Error()
}

// errorType names the concrete Go type of err, which is the closest
// analogue the protocol's errtype field has.
func errorType(err error) string {
	if err == nil {
		return "error"
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "error"
	}

	return t.Name()
}
