package dispatch

import "fmt"

// CredentialStore holds the tenant/client id/secret loaded once at startup
// and maps an Audience to its OAuth scope string (C1). It is intentionally
// the simplest correct thing: no rotation, no KeyVault integration.
type CredentialStore struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// NewCredentialStore builds a store from already-resolved values; callers
// typically populate these from config.Configuration at startup.
func NewCredentialStore(tenantID, clientID, clientSecret string) *CredentialStore {
	return &CredentialStore{TenantID: tenantID, ClientID: clientID, ClientSecret: clientSecret}
}

// hasCredentials reports whether all three values are non-empty. It never
// panics or errors; callers (e.g. a health tool) degrade gracefully.
func (c *CredentialStore) hasCredentials() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// require returns a non-fatal error describing what is missing, or nil.
func (c *CredentialStore) require() error {
	if c.hasCredentials() {
		return nil
	}
	return fmt.Errorf("dispatch: missing credentials (tenant/client/secret)")
}

// scopeFor maps an audience to its client-credentials OAuth scope.
func scopeFor(a Audience) (string, error) {
	switch a {
	case AudienceGraph:
		return "https://graph.microsoft.com/.default", nil
	case AudienceIntune:
		return "https://manage.microsoft.com/.default", nil
	case AudienceAzure:
		return "https://management.azure.com/.default", nil
	default:
		return "", fmt.Errorf("dispatch: unknown audience %q", a)
	}
}

// tokenURLOverride lets tests point the token endpoint at a local
// httptest.Server, mirroring the teacher's SetCustomEndpoints convention
// for pkg/onedrive/auth.go.
var tokenURLOverride string

// SetTokenURLOverrideForTesting points every CredentialStore's token
// endpoint at url instead of login.microsoftonline.com. Test-only.
func SetTokenURLOverrideForTesting(url string) {
	tokenURLOverride = url
}

func (c *CredentialStore) tokenURL() string {
	if tokenURLOverride != "" {
		return tokenURLOverride
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.TenantID)
}
