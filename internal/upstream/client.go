// Package upstream performs the outbound HTTP calls a chat turn depends on and
// degrades each of them to a caller-supplied fallback on failure.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/tracing"
	"github.com/allaspectsdev/chatproxy/internal/version"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// defaultTimeout applies when a Request does not set one.
const defaultTimeout = 30 * time.Second

// Request describes one outbound call.
type Request struct {
	// Op names the call in logs, metrics and spans (e.g. "shopify.products").
	Op      string
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Client sends upstream requests over a shared pooled transport. Every call
// gets its own deadline from Request.Timeout.
type Client struct {
	http     *http.Client
	observer observe.Observer
	metrics  *metrics.Collector
}

// NewClient creates a Client. A nil observer discards events and a nil
// collector disables metrics.
func NewClient(observer observe.Observer, collector *metrics.Collector) *Client {
	if observer == nil {
		observer = observe.Nop()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		http:     &http.Client{Transport: transport},
		observer: observer,
		metrics:  collector,
	}
}

// Do sends req and returns the response body. Non-2xx responses produce a
// *StatusError.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := tracing.StartUpstreamSpan(ctx, req.Op, method, req.URL)
	defer span.End()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("%s: creating request: %w", req.Op, err)
	}
	for key, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	tracing.InjectHeaders(ctx, httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("%s: %w", req.Op, err)
	}
	defer resp.Body.Close()
	tracing.SetResponseStatus(ctx, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("%s: reading response: %w", req.Op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := newStatusError(req.Op, resp.StatusCode, data)
		tracing.RecordError(ctx, serr)
		return nil, serr
	}
	return data, nil
}
