package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
)

// FetchWithFallback sends req, decodes the body with parse and returns the
// decoded value with ok=true. Any failure along the way (transport error,
// timeout, non-2xx status, parse error, or a panic inside parse) is logged
// and yields fallback with ok=false. It never returns an error.
func FetchWithFallback[T any](ctx context.Context, c *Client, req Request, parse func([]byte) (T, error), fallback T) (value T, ok bool) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, req.Op, fmt.Errorf("%s: panic: %v", req.Op, r), time.Since(start))
			value, ok = fallback, false
		}
	}()

	body, err := c.Do(ctx, req)
	if err == nil {
		value, err = parse(body)
	}
	if err != nil {
		c.fail(ctx, req.Op, err, time.Since(start))
		return fallback, false
	}

	elapsed := time.Since(start)
	c.metrics.RecordFetch(req.Op, metrics.OutcomeSuccess, elapsed)
	c.observer.Log(ctx, zerolog.DebugLevel, "upstream.ok", observe.Fields{
		"op":          req.Op,
		"duration_ms": elapsed.Milliseconds(),
	})
	return value, true
}

func (c *Client) fail(ctx context.Context, op string, err error, elapsed time.Duration) {
	c.metrics.RecordFetch(op, metrics.OutcomeFallback, elapsed)

	fields := observe.Fields{
		"op":          op,
		"error":       err,
		"duration_ms": elapsed.Milliseconds(),
	}
	var serr *StatusError
	if errors.As(err, &serr) {
		fields["status"] = serr.StatusCode
		if serr.Body != "" {
			fields["body"] = serr.Body
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fields["timeout"] = true
	}
	c.observer.Log(ctx, zerolog.WarnLevel, "upstream.failed", fields)
}
