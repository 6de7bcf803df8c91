package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
)

var (
	ErrEmptyBody            = errors.New("request body is empty")
	ErrInvalidJSON          = errors.New("request body is not a single JSON value")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrBodyTimeout          = errors.New("timed out reading request body")
	ErrUnsupportedMediaType = errors.New("unsupported content type")
)

// Event is one decoded ingest payload. The JSON tree is kept opaque.
type Event struct {
	raw json.RawMessage
}

// Raw returns the event's JSON as received.
func (e Event) Raw() json.RawMessage {
	return e.raw
}

// Size is the length in bytes of the received JSON value.
func (e Event) Size() int {
	return len(e.raw)
}

// Pretty renders the event as JSON indented by two spaces.
func (e Event) Pretty() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, e.raw, "", "  "); err != nil {
		return string(e.raw)
	}
	return buf.String()
}

// CheckMediaType accepts an absent Content-Type or application/json.
func CheckMediaType(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
	if mediaType != "application/json" {
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}
	return nil
}

// Decode reads exactly one JSON value from r. Anything but whitespace after
// the value is rejected.
func Decode(r io.Reader) (Event, error) {
	dec := json.NewDecoder(r)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, ErrEmptyBody
		}
		return Event{}, classify(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return Event{}, fmt.Errorf("%w: trailing data after value", ErrInvalidJSON)
		}
		return Event{}, classify(err)
	}
	return Event{raw: raw}, nil
}

func classify(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrBodyTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrBodyTimeout
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return fmt.Errorf("read request body: %w", err)
}
