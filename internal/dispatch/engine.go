package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/graph-dispatch-mcp/internal/logger"
)

// Engine is the Dispatch Engine (C7): a process-singleton orchestrator of
// C1–C6, C8, C9 for one tool call at a time. The Token Cache and Rate
// Limiter it owns are constructed once and injected into every dispatch,
// never implicit module-global state, so tests can build their own
// engine against a stub upstream.
type Engine struct {
	store      *CredentialStore
	tokens     *TokenCache
	limiter    *RateLimiter
	httpClient *http.Client
	logger     logger.Logger
	defaults   requestDefaults
}

// EngineOption configures optional Engine construction parameters.
type EngineOption func(*engineConfig)

type engineConfig struct {
	rateLimitMax    int
	rateLimitWindow time.Duration
	httpClient      *http.Client
	logger          logger.Logger
	defaults        requestDefaults
}

func WithRateLimit(maxPerWindow int, window time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.rateLimitMax = maxPerWindow
		c.rateLimitWindow = window
	}
}

func WithHTTPClient(client *http.Client) EngineOption {
	return func(c *engineConfig) { c.httpClient = client }
}

func WithLogger(log logger.Logger) EngineOption {
	return func(c *engineConfig) { c.logger = log }
}

// WithDefaultRetry sets the engine-wide retry defaults a Request falls
// back to when it leaves MaxRetries/RetryBaseDelay unset (§6).
func WithDefaultRetry(maxRetries int, baseDelay time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.defaults.maxRetries = maxRetries
		c.defaults.retryBaseDelay = baseDelay
	}
}

// WithDefaultTimeout sets the engine-wide per-dispatch timeout a Request
// falls back to when it leaves Timeout unset (§6).
func WithDefaultTimeout(d time.Duration) EngineOption {
	return func(c *engineConfig) { c.defaults.timeout = d }
}

// NewEngine constructs a Dispatch Engine around the given credential
// store. opts customize rate limit, HTTP client, logger, and the
// startup-configured retry/timeout defaults; all have documented
// built-in fallbacks.
func NewEngine(store *CredentialStore, opts ...EngineOption) *Engine {
	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 0}
	}
	if cfg.logger == nil {
		cfg.logger = logger.NoopLogger{}
	}

	return &Engine{
		store:      store,
		tokens:     NewTokenCache(store, cfg.httpClient, cfg.logger),
		limiter:    NewRateLimiter(cfg.rateLimitMax, cfg.rateLimitWindow),
		httpClient: cfg.httpClient,
		defaults:   cfg.defaults,
		logger:     cfg.logger,
	}
}

// Dispatch runs one tool invocation through the full C1–C9 pipeline.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	req = req.withDefaults(e.defaults)

	if req.FetchAll && req.Method != MethodGet {
		return nil, newError(KindInvalidArgument, 0, 0, "fetchAll requires method GET", nil)
	}

	if err := e.store.require(); err != nil {
		return nil, newError(KindAuthenticationError, 0, 0, err.Error(), err)
	}

	dctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	correlationID := uuid.NewString()
	dispatchLogger := e.logger.With("requestId", correlationID, "audience", string(req.Audience), "path", req.Path)

	rt := route(req.Audience, req.Path, req.APIVersion)

	var body json.RawMessage
	var attempts int
	var itemsFetched int
	var httpStatus int

	if req.FetchAll {
		var pageErr error
		body, attempts, itemsFetched, pageErr = runPagination(dctx, dispatchLogger, func(pctx context.Context, nextURL string) (json.RawMessage, int, error) {
			pageReq := req
			if nextURL != "" {
				pageReq.Path = nextURL
			}
			b, status, n, attemptErr := e.attemptCycle(pctx, pageReq, rt)
			httpStatus = status
			return b, n, attemptErr
		})
		if pageErr != nil {
			return nil, pageErr
		}
	} else {
		var attemptErr error
		body, httpStatus, attempts, attemptErr = e.attemptCycle(dctx, req, rt)
		if attemptErr != nil {
			return nil, attemptErr
		}
	}

	dispatchLogger.Debug("dispatch complete", "attempts", attempts, "httpStatus", httpStatus, "itemsFetched", itemsFetched)

	shaped, err := shape(body, req.ResponseFormat, rt.audience, req.Method, req.Path, time.Since(started).Milliseconds(), itemsFetched)
	if err != nil {
		return nil, err
	}

	return &Response{
		Value:        shaped,
		ExecutionMs:  time.Since(started).Milliseconds(),
		ItemsFetched: itemsFetched,
		Attempts:     attempts,
		HTTPStatus:   httpStatus,
	}, nil
}

// attemptCycle runs C3 (rate limit) → C4 (retry decision) → C5 (HTTP
// round trip) for one request, retrying per the §4.4 table up to
// maxRetries+1 total attempts. Every suspension point (rate-limiter wait,
// backoff sleep, network call) honors ctx cancellation. The rate limiter
// is re-acquired before every attempt, including retries, because each
// upstream attempt consumes real capacity.
func (e *Engine) attemptCycle(ctx context.Context, req Request, rt routeResult) (json.RawMessage, int, int, error) {
	targetURL, _, err := buildURL(rt, req)
	if err != nil {
		return nil, 0, 0, newError(KindInvalidArgument, 0, 0, err.Error(), err)
	}

	token, err := e.tokens.Get(ctx, rt.audience)
	if err != nil {
		return nil, 0, 0, err
	}

	raw := req.ResponseFormat == FormatRaw
	maxAttempts := req.MaxRetries + 1

	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, lastStatus, attempt - 1, err
		}

		result := executeOnce(ctx, e.httpClient, req.Method, targetURL, req.Body, token, raw)
		lastStatus = result.status

		if result.transportErr != nil && result.status >= 200 && result.status < 300 && len(result.rawBody) > 0 && !json.Valid(result.rawBody) {
			return nil, result.status, attempt, newErrorWithUpstreamID(KindProtocolError, result.status, attempt, result.transportErr.Error(), result.transportErr, upstreamRequestID(result.headers))
		}

		decision :=decideRetry(result.status, result.retryAfter, attempt, req.RetryBaseDelay, result.transportErr)

		if result.transportErr == nil && result.status >= 200 && result.status < 400 {
			return result.body, result.status, attempt, nil
		}

		if !decision.retry || attempt == maxAttempts {
			return nil, result.status, attempt, e.terminalError(ctx, result, attempt)
		}

		if result.status == http.StatusUnauthorized {
			e.tokens.Invalidate(rt.audience)
			if newTok, terr := e.tokens.Get(ctx, rt.audience); terr == nil {
				token = newTok
			}
		}

		if err := sleep(ctx, decision.delay); err != nil {
			return nil, result.status, attempt, err
		}
	}

	return nil, lastStatus, maxAttempts, newError(KindUpstreamTransient, lastStatus, maxAttempts, "exhausted retries", nil)
}

// terminalError classifies a non-retryable or exhausted attempt into the
// C10 taxonomy, distinguishing context deadline/cancellation from a
// genuine upstream failure.
func (e *Engine) terminalError(ctx context.Context, result attemptResult, attempt int) error {
	reqID := upstreamRequestID(result.headers)

	if result.transportErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return newErrorWithUpstreamID(KindTimeout, result.status, attempt, "request deadline exceeded", result.transportErr, reqID)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return newErrorWithUpstreamID(KindCancelled, result.status, attempt, "request cancelled", result.transportErr, reqID)
		}
		return newErrorWithUpstreamID(KindUpstreamTransient, result.status, attempt, result.transportErr.Error(), result.transportErr, reqID)
	}

	kind := kindForStatus(result.status)
	return newErrorWithUpstreamID(kind, result.status, attempt, http.StatusText(result.status), nil, reqID)
}

// HealthStatus is the non-blocking diagnostic surface described in §6; it
// is safe to call before authentication is configured.
func (e *Engine) HealthStatus() HealthStatus {
	return HealthStatus{
		Ready:                    e.store.hasCredentials(),
		HasCredentials:           e.store.hasCredentials(),
		AudiencesWithCachedToken: e.tokens.cachedAudiences(),
	}
}

// Invalidate forces the next call for audience to refresh its token; used
// by error handlers on AuthorizationError.
func (e *Engine) Invalidate(audience Audience) {
	e.tokens.Invalidate(audience)
}
