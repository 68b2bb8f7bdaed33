package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/graph-dispatch-mcp/internal/logger"
)

// TokenCache holds per-audience cached bearer tokens with expiry and
// refresh (C2). Concurrent misses for the same audience are coalesced via
// singleflight; unrelated audiences never contend.
type TokenCache struct {
	store      *CredentialStore
	httpClient *http.Client
	logger     logger.Logger

	mu     sync.RWMutex
	tokens map[Audience]Token

	group singleflight.Group
}

// NewTokenCache constructs a cache backed by the given credential store.
// httpClient is used for the token-endpoint round trip; pass nil to use
// http.DefaultClient.
func NewTokenCache(store *CredentialStore, httpClient *http.Client, log logger.Logger) *TokenCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &TokenCache{
		store:      store,
		httpClient: httpClient,
		logger:     log,
		tokens:     make(map[Audience]Token),
	}
}

// Get returns a valid bearer token for audience, refreshing it if absent
// or within the skew window of expiry. Concurrent Get calls for the same
// audience during a miss share a single in-flight refresh.
func (c *TokenCache) Get(ctx context.Context, audience Audience) (Token, error) {
	now := time.Now()

	c.mu.RLock()
	cached, ok := c.tokens[audience]
	c.mu.RUnlock()
	if ok && cached.validAt(now) {
		return cached, nil
	}

	v, err, _ := c.group.Do(string(audience), func() (interface{}, error) {
		// Re-check under the singleflight key: another caller may have
		// completed a refresh while we were queued behind it.
		c.mu.RLock()
		cached, ok := c.tokens[audience]
		c.mu.RUnlock()
		if ok && cached.validAt(time.Now()) {
			return cached, nil
		}
		return c.refresh(ctx, audience)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Invalidate forces the next Get for audience to refresh, used by error
// handlers on AuthorizationError.
func (c *TokenCache) Invalidate(audience Audience) {
	c.mu.Lock()
	delete(c.tokens, audience)
	c.mu.Unlock()
}

// cachedAudiences lists audiences currently holding a cached token, for
// healthStatus().
func (c *TokenCache) cachedAudiences() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tokens))
	for a, tok := range c.tokens {
		if tok.validAt(time.Now()) {
			out = append(out, string(a))
		}
	}
	return out
}

func (c *TokenCache) refresh(ctx context.Context, audience Audience) (Token, error) {
	scope, err := scopeFor(audience)
	if err != nil {
		return Token{}, newError(KindInvalidArgument, 0, 1, err.Error(), err)
	}

	cfg := &clientcredentials.Config{
		ClientID:     c.store.ClientID,
		ClientSecret: c.store.ClientSecret,
		TokenURL:     c.store.tokenURL(),
		Scopes:       []string{scope},
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	reqCtx = context.WithValue(reqCtx, oauth2.HTTPClient, c.httpClient)

	tok, err := cfg.Token(reqCtx)
	if err != nil {
		if reqCtx.Err() != nil {
			return Token{}, newError(KindTimeout, 0, 1, "token endpoint timed out", err)
		}
		return Token{}, classifyTokenErr(err)
	}

	expiresAt := time.Now().Add(time.Until(tok.Expiry) - tokenSkew)
	result := Token{Audience: audience, Value: tok.AccessToken, ExpiresAt: expiresAt}

	c.mu.Lock()
	c.tokens[audience] = result
	c.mu.Unlock()

	c.logger.Debugf("dispatch: refreshed token for audience=%s expiresAt=%s", audience, expiresAt.Format(time.RFC3339))
	return result, nil
}

// classifyTokenErr maps a clientcredentials.Config.Token error to the C10
// taxonomy: 401/invalid_client is fatal AuthenticationError; 5xx or a
// network failure with no HTTP response is UpstreamTransient. The engine
// does not retry token-endpoint failures: attemptCycle returns them as-is
// before its first HTTP attempt.
func classifyTokenErr(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if ok := asRetrieveError(err, &retrieveErr); ok && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status >= 500 {
			return newError(KindUpstreamTransient, status, 1, "token endpoint returned a server error", err)
		}
		return newError(KindAuthenticationError, status, 1, "token endpoint rejected client credentials", err)
	}
	return newError(KindUpstreamTransient, 0, 1, fmt.Sprintf("token request failed: %s", err.Error()), err)
}

func asRetrieveError(err error, target **oauth2.RetrieveError) bool {
	for err != nil {
		if re, ok := err.(*oauth2.RetrieveError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
