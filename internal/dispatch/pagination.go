package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tonimelisma/graph-dispatch-mcp/internal/logger"
)

// runPagination drives the Pagination Driver (C6): repeatedly attempts a
// page through attemptFn, follows @odata.nextLink, and concatenates
// body.value arrays. On any terminal failure the whole dispatch fails —
// partial accumulation is discarded, since a caller cannot distinguish a
// truncated page set from a complete one.
func runPagination(ctx context.Context, log logger.Logger, first func(ctx context.Context, url string) (json.RawMessage, int, error)) (json.RawMessage, int, int, error) {
	var accumulator []json.RawMessage
	var firstContext string
	nextURL := ""
	totalAttempts := 0
	page := 0

	for {
		page++
		body, attempts, err := first(ctx, nextURL)
		totalAttempts += attempts
		if err != nil {
			return nil, totalAttempts, 0, err
		}

		var envelope struct {
			ODataContext string          `json:"@odata.context"`
			NextLink     string          `json:"@odata.nextLink"`
			Value        json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, totalAttempts, 0, newError(KindProtocolError, 0, attempts, "paginated response is not valid JSON", err)
		}
		if envelope.Value == nil {
			return nil, totalAttempts, 0, newError(KindProtocolError, 0, attempts, "paginated response missing value array", nil)
		}

		var items []json.RawMessage
		if err := json.Unmarshal(envelope.Value, &items); err != nil {
			return nil, totalAttempts, 0, newError(KindProtocolError, 0, attempts, "paginated response value is not an array", err)
		}
		accumulator = append(accumulator, items...)

		if page == 1 {
			firstContext = envelope.ODataContext
		}

		log.Debugf("dispatch: pagination page=%d items=%d nextLink=%t", page, len(items), envelope.NextLink != "")

		if envelope.NextLink == "" {
			break
		}
		nextURL = envelope.NextLink

		if ctx.Err() != nil {
			return nil, totalAttempts, 0, newError(KindCancelled, 0, attempts, "pagination cancelled", ctx.Err())
		}
	}

	result := pagedEnvelope{
		ODataContext: firstContext,
		Value:        accumulator,
		TotalCount:   len(accumulator),
		FetchedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, totalAttempts, len(accumulator), newError(KindProtocolError, 0, 0, "failed to marshal paginated result", err)
	}
	return out, totalAttempts, len(accumulator), nil
}
