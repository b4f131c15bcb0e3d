package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion is the protocol revision this library speaks. It is
// announced in the HELLO payload and checked against the server greeting.
const ProtocolVersion = 2

// Greeting is the server banner payload, sent as "HI {json}" immediately
// after the socket opens.
type Greeting struct {
	// Version is the server's protocol revision.
	Version int `json:"v"`

	// Salt and Iterations parameterize password digesting when the
	// server requires authentication. Both are absent otherwise.
	Salt       string `json:"s,omitempty"`
	Iterations int    `json:"i,omitempty"`
}

// ParseGreeting parses the banner line. The argument is the message text
// with any response marker already stripped, i.e. `HI {"v":2}`.
func ParseGreeting(text string) (*Greeting, error) {
	rest, ok := strings.CutPrefix(text, "HI")
	if !ok {
		return nil, fmt.Errorf("wire: expected HI banner, got %q", text)
	}

	g := &Greeting{}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return g, nil
	}

	if err := json.Unmarshal([]byte(rest), g); err != nil {
		return nil, fmt.Errorf("wire: malformed greeting %q: %w", text, err)
	}

	return g, nil
}

// Hello is the client's reply to the greeting. Wid and Labels identify a
// worker process; producer-only clients omit them and the server will not
// send that connection heartbeat directives.
type Hello struct {
	Hostname string   `json:"hostname"`
	Wid      string   `json:"wid,omitempty"`
	Pid      int      `json:"pid"`
	Labels   []string `json:"labels,omitempty"`
	Version  int      `json:"v"`
}
