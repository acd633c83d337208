package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "endpoint only",
			key:  CacheKey{Endpoint: "/api/v1/artworks"},
			want: "artsel:api/v1/artworks",
		},
		{
			name: "host is lower-cased",
			key:  CacheKey{Host: "API.artic.edu", Endpoint: "/api/v1/artworks/"},
			want: "artsel:api.artic.edu:api/v1/artworks",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Host:     "api.artic.edu",
				Endpoint: "/api/v1/artworks",
				QueryParams: url.Values{
					"page":  []string{"3"},
					"limit": []string{"12"},
				},
			},
			want: "artsel:api.artic.edu:api/v1/artworks:limit=12:page=3",
		},
		{
			name: "multi-valued param joined",
			key: CacheKey{
				Endpoint:    "/api/v1/artworks",
				QueryParams: url.Values{"fields": []string{"id", "title"}},
			},
			want: "artsel:api/v1/artworks:fields=id,title",
		},
		{
			name: "empty key",
			key:  CacheKey{},
			want: "artsel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey_DistinctPages(t *testing.T) {
	u1, _ := url.Parse("https://api.artic.edu/api/v1/artworks?page=1&limit=12")
	u2, _ := url.Parse("https://api.artic.edu/api/v1/artworks?limit=12&page=2")
	u1b, _ := url.Parse("https://api.artic.edu/api/v1/artworks?limit=12&page=1")

	if KeyForURL(u1).String() == KeyForURL(u2).String() {
		t.Error("different pages must not share a cache key")
	}
	if KeyForURL(u1).String() != KeyForURL(u1b).String() {
		t.Error("query order must not change the cache key")
	}
}
