package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces every Redis key written by this package.
const keyPrefix = "artsel"

// CacheKey identifies one cached page request.
type CacheKey struct {
	// Host is the API host, so two base URLs never share entries
	Host string

	// Endpoint is the request path (e.g. "/api/v1/artworks")
	Endpoint string

	// QueryParams carry the page number, page size and field list
	QueryParams url.Values
}

// String generates a deterministic key.
//
// Example:
//
//	artsel:api.artic.edu:api/v1/artworks:limit=12:page=2
func (k CacheKey) String() string {
	parts := []string{keyPrefix}

	if k.Host != "" {
		parts = append(parts, strings.ToLower(k.Host))
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		keys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}

// KeyForURL builds the key of a request URL.
func KeyForURL(u *url.URL) CacheKey {
	return CacheKey{
		Host:        u.Host,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
	}
}
