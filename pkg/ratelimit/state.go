// Package ratelimit tracks the request budget advertised by the artworks API
// and gates outgoing page fetches. It reads the X-RateLimit-Remaining and
// X-RateLimit-Reset headers (and Retry-After on 429) and shares the state
// between processes through Redis.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "artsel:rate_limit:remaining"
	RedisKeyResetTimestamp = "artsel:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "artsel:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical holds requests until the window resets, or rejects
	// them when the reset is further away than the tracker's max block wait.
	ThresholdCritical = 2

	// ThresholdWarning throttles requests.
	ThresholdWarning = 10

	// ThresholdHealthy and above means no restrictions.
	ThresholdHealthy = 30
)

// RateLimitState is the current request budget of the upstream API.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was last refreshed from response headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
// A window that has already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the window resets, 0 if it already has.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
