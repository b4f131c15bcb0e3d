package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readBufferSize must hold any single response line; bulk payloads are
// length-prefixed and read separately, so only the header lines pass
// through the buffer.
const readBufferSize = 32 * 1024

// Message is one parsed server response.
type Message struct {
	// Text is the response payload: the body of an ok-line or the
	// contents of a bulk string.
	Text string

	// Null marks the null bulk response ($-1), e.g. a fetch that timed
	// out with no job available.
	Null bool
}

// ProtocolError is an error reply from the server (a "-" line).
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "wire: server error: " + e.Msg
}

// Reader parses server responses from a stream.
//
// The grammar is a RESP subset: "+<text>" is an ok-line, "-<text>" is an
// error, "$<n>" announces an n-byte bulk payload followed by CRLF, and
// "$-1" is the null bulk. Anything else is taken as a raw text line, which
// keeps the parser tolerant of servers that omit the "+" on simple
// replies.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps a stream for response parsing.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Read returns the next discrete message from the stream. Server error
// replies are returned as a *ProtocolError; transport errors pass through
// unchanged.
func (r *Reader) Read() (*Message, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}

	if line == "" {
		return &Message{}, nil
	}

	switch line[0] {
	case '+':
		return &Message{Text: line[1:]}, nil
	case '-':
		return nil, &ProtocolError{Msg: line[1:]}
	case '$':
		return r.readBulk(line[1:])
	default:
		return &Message{Text: line}, nil
	}
}

// readLine reads one CRLF-terminated line and strips the terminator.
func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// readBulk consumes a length-prefixed payload plus its trailing CRLF.
func (r *Reader) readBulk(header string) (*Message, error) {
	n, err := strconv.Atoi(header)
	if err != nil {
		return nil, fmt.Errorf("wire: malformed bulk length %q: %w", header, err)
	}

	if n < 0 {
		return &Message{Null: true}, nil
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}

	return &Message{Text: string(buf[:n])}, nil
}
