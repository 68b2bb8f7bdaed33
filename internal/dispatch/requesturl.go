package dispatch

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// buildURL constructs the effective request URL for one attempt. If path
// is already absolute (a pagination cursor), it is used verbatim and
// nothing else is merged in — the cursor is authoritative. Otherwise
// baseURL, the version segment (Graph) or api-version query param
// (Azure), and path are joined, and caller queryParams are merged with
// server-added $select/$expand/$top — but only for GET; for other
// methods those fields are ignored.
func buildURL(rt routeResult, req Request) (string, []string, error) {
	if strings.HasPrefix(req.Path, "http://") || strings.HasPrefix(req.Path, "https://") {
		return req.Path, nil, nil
	}

	base := strings.TrimRight(rt.baseURL, "/")
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var full string
	if rt.audience == AudienceAzure {
		full = base + path
	} else {
		full = base + "/" + rt.apiVersion + path
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", nil, fmt.Errorf("invalid path %q: %w", req.Path, err)
	}

	q := u.Query()
	for k, v := range req.QueryParams {
		q.Set(k, v)
	}

	var warnings []string
	if req.Method == MethodGet {
		if len(req.SelectFields) > 0 {
			q.Set("$select", strings.Join(req.SelectFields, ","))
		}
		if len(req.ExpandFields) > 0 {
			q.Set("$expand", strings.Join(req.ExpandFields, ","))
		}
		if req.BatchSize > 0 {
			q.Set("$top", strconv.Itoa(req.BatchSize))
		}
	} else if len(req.SelectFields) > 0 || len(req.ExpandFields) > 0 || req.BatchSize > 0 {
		warnings = append(warnings, fmt.Sprintf("selectFields/expandFields/batchSize ignored for method %s", req.Method))
	}

	if rt.audience == AudienceAzure && req.APIVersion != "" {
		q.Set("api-version", req.APIVersion)
	}

	u.RawQuery = q.Encode()
	return u.String(), warnings, nil
}
