package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const userAgent = "graph-dispatch-mcp/1.0"

// attemptResult is the outcome of a single HTTP Executor (C5) round trip.
type attemptResult struct {
	status        int
	body          json.RawMessage
	rawBody       []byte
	headers       http.Header
	retryAfter    time.Duration
	transportErr  error
}

// executeOnce performs exactly one round trip: builds the request,
// attaches auth/correlation/Accept headers, and either parses the JSON
// body or returns raw bytes when raw is requested. It never retries —
// that is the Retry Controller's job one level up.
func executeOnce(ctx context.Context, client *http.Client, method Method, url string, body json.RawMessage, token Token, raw bool) attemptResult {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(method), url, reader)
	if err != nil {
		return attemptResult{transportErr: fmt.Errorf("building request: %w", err)}
	}

	httpReq.Header.Set("Authorization", "Bearer "+token.Value)
	httpReq.Header.Set("client-request-id", uuid.NewString())
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return attemptResult{transportErr: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{status: resp.StatusCode, headers: resp.Header, transportErr: fmt.Errorf("reading body: %w", err)}
	}

	result := attemptResult{
		status:     resp.StatusCode,
		rawBody:    data,
		headers:    resp.Header,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	if raw {
		result.body = json.RawMessage(data)
		return result
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && len(data) > 0 {
		if !json.Valid(data) {
			result.transportErr = fmt.Errorf("response body is not valid JSON")
			return result
		}
		result.body = json.RawMessage(data)
	} else if len(data) > 0 && json.Valid(data) {
		// Best-effort parse of error bodies too, so callers can surface
		// upstream error detail; invalid JSON on a non-2xx is not itself
		// a ProtocolError per §4.5 (only a malformed 2xx body is).
		result.body = json.RawMessage(data)
	}

	return result
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func upstreamRequestID(h http.Header) string {
	if h == nil {
		return ""
	}
	if v := h.Get("request-id"); v != "" {
		return v
	}
	return h.Get("client-request-id")
}
