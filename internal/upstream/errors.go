package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty reports a response that parsed but carried nothing usable.
	ErrEmpty = errors.New("upstream: empty result")
	// ErrMalformed reports a response body that could not be decoded.
	ErrMalformed = errors.New("upstream: malformed payload")
)

// maxErrorBody caps how much of a failed response body is kept for logging.
const maxErrorBody = 512

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream returned status %d", e.Op, e.StatusCode)
}

func newStatusError(op string, code int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Op: op, StatusCode: code, Body: string(body)}
}
