package dispatch

import "strings"

const (
	defaultGraphBaseURL = "https://graph.microsoft.com"
	defaultAzureBaseURL = "https://management.azure.com"
)

// graphBaseURLOverride and azureBaseURLOverride let tests point the
// router at a local httptest.Server instead of the real Microsoft hosts.
var (
	graphBaseURLOverride string
	azureBaseURLOverride string
)

// SetGraphBaseURLOverrideForTesting points every route() call's Graph
// base URL at url instead of graph.microsoft.com. Test-only.
func SetGraphBaseURLOverrideForTesting(url string) {
	graphBaseURLOverride = url
}

// SetAzureBaseURLOverrideForTesting points every route() call's Azure
// base URL at url instead of management.azure.com. Test-only.
func SetAzureBaseURLOverrideForTesting(url string) {
	azureBaseURLOverride = url
}

func graphBaseURL() string {
	if graphBaseURLOverride != "" {
		return graphBaseURLOverride
	}
	return defaultGraphBaseURL
}

func azureBaseURL() string {
	if azureBaseURLOverride != "" {
		return azureBaseURLOverride
	}
	return defaultAzureBaseURL
}

// intunePrefixes are path prefixes that reclassify a Graph request as
// Intune: a distinct OAuth scope against the same Graph host. Preserved
// verbatim from the source system's behavior — the token is minted
// against manage.microsoft.com but the request still targets
// graph.microsoft.com. Do not "fix" this; it is load-bearing.
var intunePrefixes = []string{
	"/deviceManagement",
	"/deviceAppManagement",
	"/informationProtection",
}

// routeResult is the pure-function output of the Endpoint Router (C8).
type routeResult struct {
	audience   Audience
	baseURL    string
	apiVersion string
}

// route classifies a request's audience and base URL. It is a pure
// function of (audience, path, apiVersion) and never mutates path.
func route(requested Audience, path string, apiVersion string) routeResult {
	switch requested {
	case AudienceAzure:
		return routeResult{audience: AudienceAzure, baseURL: azureBaseURL(), apiVersion: apiVersion}
	case AudienceGraph, AudienceIntune:
		effectiveAudience := AudienceGraph
		for _, prefix := range intunePrefixes {
			if strings.HasPrefix(path, prefix) {
				effectiveAudience = AudienceIntune
				break
			}
		}
		v := apiVersion
		if v == "" {
			v = defaultGraphAPIVersion
		}
		return routeResult{audience: effectiveAudience, baseURL: graphBaseURL(), apiVersion: v}
	default:
		return routeResult{audience: requested}
	}
}
