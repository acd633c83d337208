package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		maxAge   time.Duration
		expected bool
	}{
		{name: "fresh state", age: 0, maxAge: 5 * time.Minute, expected: false},
		{name: "stale state", age: 10 * time.Minute, maxAge: 5 * time.Minute, expected: true},
		{name: "just under max age", age: 4 * time.Minute, maxAge: 5 * time.Minute, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{LastUpdate: time.Now().Add(-tt.age)}
			if got := state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_Decisions(t *testing.T) {
	tests := []struct {
		name         string
		remaining    int
		resetIn      time.Duration
		wantBlock    bool
		wantThrottle bool
		wantHealthy  bool
	}{
		{name: "healthy", remaining: 60, resetIn: time.Minute, wantHealthy: true},
		{name: "at healthy threshold", remaining: ThresholdHealthy, resetIn: time.Minute, wantHealthy: true},
		{name: "between warning and healthy", remaining: ThresholdWarning, resetIn: time.Minute},
		{name: "warning", remaining: ThresholdWarning - 1, resetIn: time.Minute, wantThrottle: true},
		{name: "at critical threshold", remaining: ThresholdCritical, resetIn: time.Minute, wantThrottle: true},
		{name: "critical", remaining: ThresholdCritical - 1, resetIn: time.Minute, wantBlock: true},
		{name: "exhausted", remaining: 0, resetIn: time.Minute, wantBlock: true},
		{name: "exhausted but window reset", remaining: 0, resetIn: -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				Remaining:  tt.remaining,
				ResetAt:    time.Now().Add(tt.resetIn),
				LastUpdate: time.Now(),
			}
			state.UpdateHealth()

			if got := state.NeedsCriticalBlock(); got != tt.wantBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.wantBlock)
			}
			if got := state.NeedsThrottling(); got != tt.wantThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.wantThrottle)
			}
			if state.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.wantHealthy)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	past := &RateLimitState{ResetAt: time.Now().Add(-time.Minute)}
	if got := past.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0", got)
	}

	future := &RateLimitState{ResetAt: time.Now().Add(30 * time.Second)}
	if got := future.TimeUntilReset(); got < 29*time.Second || got > 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want about 30s", got)
	}
}
