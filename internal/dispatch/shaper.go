package dispatch

import (
	"encoding/json"
	"fmt"
)

// shape applies the Response Shaper (C9): full wraps the body in a
// summary envelope, raw returns it unchanged, minimal unwraps a
// {value:[...]} body to just the array. Field projection ($select) is
// applied server-side by Microsoft; C9 does no local filtering.
func shape(body json.RawMessage, format ResponseFormat, audience Audience, method Method, path string, executionMs int64, itemsFetched int) (json.RawMessage, error) {
	switch format {
	case FormatRaw:
		return body, nil
	case FormatMinimal:
		if arr, ok := extractValueArray(body); ok {
			return arr, nil
		}
		return body, nil
	}

	var pretty interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &pretty); err != nil {
			pretty = string(body)
		}
	}

	envelope := map[string]interface{}{
		fmt.Sprintf("Result for %s %s %s", audience, method, path): "ok",
		"executionMs":  executionMs,
		"itemsFetched": itemsFetched,
		"body":         pretty,
	}

	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, newError(KindProtocolError, 0, 0, "failed to marshal shaped response", err)
	}
	return out, nil
}

// extractValueArray returns body.value when body is a JSON object with an
// array-valued "value" field.
func extractValueArray(body json.RawMessage) (json.RawMessage, bool) {
	var holder struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body, &holder); err != nil || holder.Value == nil {
		return nil, false
	}
	var probe []json.RawMessage
	if err := json.Unmarshal(holder.Value, &probe); err != nil {
		return nil, false
	}
	return holder.Value, true
}
