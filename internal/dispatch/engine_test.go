package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, graphHandler http.Handler) (*Engine, *httptest.Server) {
	t.Helper()
	return newTestEngineWithOptions(t, graphHandler)
}

func newTestEngineWithOptions(t *testing.T, graphHandler http.Handler, extra ...EngineOption) (*Engine, *httptest.Server) {
	t.Helper()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)
	SetTokenURLOverrideForTesting(tokenSrv.URL)
	t.Cleanup(func() { SetTokenURLOverrideForTesting("") })

	graphSrv := httptest.NewServer(graphHandler)
	t.Cleanup(graphSrv.Close)
	SetGraphBaseURLOverrideForTesting(graphSrv.URL)
	t.Cleanup(func() { SetGraphBaseURLOverrideForTesting("") })

	store := NewCredentialStore("tenant", "client", "secret")
	opts := append([]EngineOption{WithRateLimit(1000, time.Minute)}, extra...)
	engine := NewEngine(store, opts...)
	return engine, graphSrv
}

// Scenario 1: paginated happy path.
func TestDispatchPaginatedHappyPath(t *testing.T) {
	var hits int64
	engine, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			nextLink := "http://" + r.Host + "/v1.0/users?$skiptoken=X"
			fmt.Fprintf(w, `{"@odata.context":"ctx","value":[{"id":"a"},{"id":"b"}],"@odata.nextLink":%q}`, nextLink)
		} else {
			fmt.Fprint(w, `{"value":[{"id":"c"}]}`)
		}
	}))

	req := Request{
		Audience:     AudienceGraph,
		Path:         "/users",
		Method:       MethodGet,
		FetchAll:     true,
		BatchSize:    2,
		SelectFields: []string{"id", "displayName"},
	}

	resp, err := engine.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.ItemsFetched)
}

// Scenario 2: retry on 503 then success.
func TestDispatchRetriesOn503ThenSucceeds(t *testing.T) {
	var hits int64
	engine, srv := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&hits, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	SetAzureBaseURLOverrideForTesting(srv.URL)
	t.Cleanup(func() { SetAzureBaseURLOverrideForTesting("") })

	req := Request{
		Audience:       AudienceAzure,
		Path:           "/subscriptions",
		Method:         MethodGet,
		APIVersion:     "2022-12-01",
		RetryBaseDelay: 20 * time.Millisecond,
	}

	start := time.Now()
	resp, err := engine.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

// Scenario 4: invariant violation — fetchAll with non-GET fails fast.
func TestDispatchInvariantViolationFetchAllNonGet(t *testing.T) {
	engine, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no HTTP call should be observable for an invariant violation")
	}))

	req := Request{Audience: AudienceGraph, Path: "/users", Method: MethodPost, FetchAll: true}
	_, err := engine.Dispatch(context.Background(), req)
	require.Error(t, err)
	var dispErr *Error
	require.ErrorAs(t, err, &dispErr)
	assert.Equal(t, KindInvalidArgument, dispErr.Kind)
}

func TestDispatchErrorCarriesUpstreamRequestID(t *testing.T) {
	engine, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("request-id", "upstream-correlation-42")
		w.WriteHeader(http.StatusForbidden)
	}))

	req := Request{Audience: AudienceGraph, Path: "/users", Method: MethodGet, MaxRetries: 0}
	_, err := engine.Dispatch(context.Background(), req)
	require.Error(t, err)

	var dispErr *Error
	require.ErrorAs(t, err, &dispErr)
	assert.Equal(t, "upstream-correlation-42", dispErr.UpstreamRequestID)
}

func TestDispatchUsesEngineConfiguredRetryAndTimeoutDefaults(t *testing.T) {
	var attempts atomic.Int32
	engine, _ := newTestEngineWithOptions(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), WithDefaultRetry(1, 5*time.Millisecond), WithDefaultTimeout(time.Second))

	req := Request{Audience: AudienceGraph, Path: "/users", Method: MethodGet}
	_, err := engine.Dispatch(context.Background(), req)
	require.Error(t, err)

	// MaxRetries=1 means 2 total attempts (initial + one retry), not the
	// package's built-in default of 3 retries (4 attempts).
	assert.Equal(t, int32(2), attempts.Load())
}

// Scenario 6: deadline honored under retry storm.
func TestDispatchDeadlineHonoredUnderRetryStorm(t *testing.T) {
	engine, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := Request{
		Audience:       AudienceGraph,
		Path:           "/users",
		Method:         MethodGet,
		Timeout:        200 * time.Millisecond,
		MaxRetries:     5,
		RetryBaseDelay: 50 * time.Millisecond,
	}

	start := time.Now()
	_, err := engine.Dispatch(context.Background(), req)
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.Less(t, elapsed, 1*time.Second, "the outer timeout must bound total wallclock regardless of maxRetries")

	var dispErr *Error
	require.ErrorAs(t, err, &dispErr)
	assert.Contains(t, []Kind{KindUpstreamTransient, KindTimeout, KindCancelled}, dispErr.Kind)
}

func TestHealthStatusReflectsCredentials(t *testing.T) {
	store := NewCredentialStore("", "", "")
	engine := NewEngine(store)
	h := engine.HealthStatus()
	assert.False(t, h.HasCredentials)
	assert.Empty(t, h.AudiencesWithCachedToken)
}

func TestDispatchFailsFastWithoutCredentials(t *testing.T) {
	store := NewCredentialStore("", "", "")
	engine := NewEngine(store)

	_, err := engine.Dispatch(context.Background(), Request{Audience: AudienceGraph, Path: "/users", Method: MethodGet})
	require.Error(t, err)

	var dispErr *Error
	require.ErrorAs(t, err, &dispErr)
	assert.Equal(t, KindAuthenticationError, dispErr.Kind)
}
