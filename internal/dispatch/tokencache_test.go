package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, atomic.LoadInt64(calls))
	}))
}

func TestTokenCacheSharesValidToken(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls)
	defer srv.Close()

	store := NewCredentialStore("tenant", "client", "secret")
	cache := NewTokenCache(store, srv.Client(), nil)
	// override token URL to point at the fake server
	patchTokenURL(t, srv.URL)

	ctx := context.Background()
	tok1, err := cache.Get(ctx, AudienceGraph)
	require.NoError(t, err)
	tok2, err := cache.Get(ctx, AudienceGraph)
	require.NoError(t, err)

	assert.Equal(t, tok1.Value, tok2.Value)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "a cached valid token must not trigger a second token-endpoint call")
}

func TestTokenCacheCoalescesConcurrentMisses(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls)
	defer srv.Close()

	store := NewCredentialStore("tenant", "client", "secret")
	cache := NewTokenCache(store, srv.Client(), nil)
	patchTokenURL(t, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), AudienceGraph)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "concurrent misses for the same audience must coalesce into a single refresh")
}

func TestTokenCacheIndependentAudiencesDoNotContend(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls)
	defer srv.Close()

	store := NewCredentialStore("tenant", "client", "secret")
	cache := NewTokenCache(store, srv.Client(), nil)
	patchTokenURL(t, srv.URL)

	ctx := context.Background()
	_, err := cache.Get(ctx, AudienceGraph)
	require.NoError(t, err)
	_, err = cache.Get(ctx, AudienceAzure)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls), "distinct audiences each mint their own token")
}

func TestTokenCacheInvalidateForcesRefresh(t *testing.T) {
	var calls int64
	srv := tokenServer(t, &calls)
	defer srv.Close()

	store := NewCredentialStore("tenant", "client", "secret")
	cache := NewTokenCache(store, srv.Client(), nil)
	patchTokenURL(t, srv.URL)

	ctx := context.Background()
	_, err := cache.Get(ctx, AudienceGraph)
	require.NoError(t, err)
	cache.Invalidate(AudienceGraph)
	_, err = cache.Get(ctx, AudienceGraph)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestTokenValidAtRespectsSkewWindow(t *testing.T) {
	now := time.Now()
	tok := Token{Value: "x", ExpiresAt: now.Add(30 * time.Second)}
	assert.False(t, tok.validAt(now), "a token expiring within the 60s skew window is not valid")

	tok2 := Token{Value: "x", ExpiresAt: now.Add(90 * time.Second)}
	assert.True(t, tok2.validAt(now))
}

// patchTokenURL overrides the store's token endpoint for tests, since the
// real tokenURL() always targets login.microsoftonline.com.
func patchTokenURL(t *testing.T, url string) {
	t.Helper()
	SetTokenURLOverrideForTesting(url)
	t.Cleanup(func() { SetTokenURLOverrideForTesting("") })
}
