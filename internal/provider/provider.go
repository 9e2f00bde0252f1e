package provider

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Result is the normalized output of any provider: whatever shape the
// upstream API returns, only a short digest with its as-of date enters
// the shared cache.
type Result struct {
	Provider string    `json:"provider"`
	QueryKey string    `json:"query_key"`
	Digest   string    `json:"digest"`
	AsOf     time.Time `json:"as_of"`
}

// MarketProvider is the uniform contract the orchestrator depends on.
// Each adapter owns its raw response shape, API auth and TTL; a failed
// Fetch omits the provider from the context, never fails the request.
type MarketProvider interface {
	Name() string
	TTL() time.Duration
	DefaultQueries() []string
	Fetch(ctx context.Context, query string) (*Result, error)
}

var queryKeyStrip = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeQueryKey folds a raw query into a stable cache key segment.
func NormalizeQueryKey(query string) string {
	key := strings.ToLower(strings.TrimSpace(query))
	key = queryKeyStrip.ReplaceAllString(key, "-")
	return strings.Trim(key, "-")
}
