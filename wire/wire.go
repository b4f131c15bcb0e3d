// Package wire implements the job server's line protocol — a text-based
// request/response protocol over a persistent TCP socket. Requests are
// single CRLF-terminated lines (a verb plus space-separated arguments);
// responses use a small RESP-style grammar of ok-lines, error lines, and
// length-prefixed bulk payloads.
package wire

import (
	"encoding/json"
	"strings"
)

// ── Well-known verbs ────────────────────────────────

const (
	VerbHello  = "HELLO"
	VerbBeat   = "BEAT"
	VerbFetch  = "FETCH"
	VerbAck    = "ACK"
	VerbFail   = "FAIL"
	VerbPush   = "PUSH"
	VerbInfo   = "INFO"
	VerbFlush  = "FLUSH"
	VerbMutate = "MUTATE"
	VerbEnd    = "END"
)

// ── Heartbeat directives ────────────────────────────

// BEAT replies carry at most one of these states; anything else means
// keep running.
const (
	StateQuiet     = "quiet"
	StateTerminate = "terminate"
)

// Command is a single request line: a verb followed by space-separated
// argument tokens. A JSON document travels as one token; the protocol has
// no quoting, so tokens must not contain spaces unless they are the final
// JSON argument.
type Command struct {
	Verb string
	Args []string
}

// NewCommand builds a command from a verb and argument tokens.
func NewCommand(verb string, args ...string) *Command {
	return &Command{Verb: verb, Args: args}
}

// JSONCommand builds a command whose single argument is the JSON encoding
// of v.
func JSONCommand(verb string, v any) (*Command, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return &Command{Verb: verb, Args: []string{string(raw)}}, nil
}

// Append adds argument tokens to the command.
func (c *Command) Append(args ...string) *Command {
	c.Args = append(c.Args, args...)

	return c
}

// Bytes renders the wire form: tokens joined by single spaces, terminated
// by CRLF.
func (c *Command) Bytes() []byte {
	var b strings.Builder
	b.WriteString(c.Verb)
	for _, arg := range c.Args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	b.WriteString("\r\n")

	return []byte(b.String())
}

// String renders the command without the trailing CRLF, for logging.
func (c *Command) String() string {
	line := c.Bytes()

	return string(line[:len(line)-2])
}
