package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastPolicy keeps the per-class attempt counts but shrinks the waits.
func fastPolicy(initial time.Duration) retryPolicy {
	return func(class ErrorClass) RetryConfig {
		rc := RetryConfigForErrorClass(class)
		rc.InitialBackoff = initial
		rc.MaxBackoff = 10 * initial
		return rc
	}
}

func classOf(c ErrorClass) func(error) ErrorClass {
	return func(error) ErrorClass { return c }
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	tests := []struct {
		name             string
		errorClass       ErrorClass
		expectedInitial  time.Duration
		expectedMax      time.Duration
		expectedAttempts int
	}{
		{
			name:             "server error config",
			errorClass:       ErrorClassServer,
			expectedInitial:  1 * time.Second,
			expectedMax:      10 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "rate limit config",
			errorClass:       ErrorClassRateLimit,
			expectedInitial:  5 * time.Second,
			expectedMax:      60 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "network error config",
			errorClass:       ErrorClassNetwork,
			expectedInitial:  2 * time.Second,
			expectedMax:      30 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "unknown error class uses default",
			errorClass:       "",
			expectedInitial:  1 * time.Second,
			expectedMax:      30 * time.Second,
			expectedAttempts: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(tt.errorClass)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.expectedMax)
			}
			if config.MaxAttempts != tt.expectedAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedAttempts)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	fn := func() error {
		callCount++
		return nil
	}

	err := retryWithBackoff(context.Background(), fastPolicy(time.Millisecond), fn, classOf(ErrorClassServer))

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	// fails twice, then succeeds
	callCount := 0
	fn := func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	start := time.Now()
	err := retryWithBackoff(context.Background(), fastPolicy(20*time.Millisecond), fn, classOf(ErrorClassServer))
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
	// 20ms + 40ms, each at least 80% after jitter
	if duration < 40*time.Millisecond {
		t.Errorf("Expected some backoff delay, got %v", duration)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")
	fn := func() error {
		callCount++
		return testErr
	}

	err := retryWithBackoff(context.Background(), fastPolicy(time.Millisecond), fn, classOf(ErrorClassServer))

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_NoRetryClasses(t *testing.T) {
	for _, class := range []ErrorClass{ErrorClassClient, ErrorClassMalformed} {
		t.Run(string(class), func(t *testing.T) {
			callCount := 0
			testErr := errors.New("permanent")
			fn := func() error {
				callCount++
				return testErr
			}

			err := retryWithBackoff(context.Background(), fastPolicy(time.Millisecond), fn, classOf(class))

			if callCount != 1 {
				t.Errorf("Expected 1 call, got %d", callCount)
			}
			if errors.Is(err, ErrRetryExhausted) {
				t.Error("Should not return ErrRetryExhausted when no retry was attempted")
			}
			if !errors.Is(err, testErr) {
				t.Errorf("Expected original error, got %v", err)
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	fn := func() error {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return errors.New("error")
	}

	err := retryWithBackoff(ctx, fastPolicy(time.Second), fn, classOf(ErrorClassServer))

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	timestamps := []time.Time{}
	fn := func() error {
		timestamps = append(timestamps, time.Now())
		return errors.New("error")
	}

	_ = retryWithBackoff(context.Background(), fastPolicy(50*time.Millisecond), fn, classOf(ErrorClassServer))

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 timestamps, got %d", len(timestamps))
	}

	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])

	// 50ms ±20%, then 100ms ±20%
	if firstDelay < 40*time.Millisecond {
		t.Errorf("First retry delay %v shorter than jitter floor", firstDelay)
	}
	if secondDelay < 80*time.Millisecond {
		t.Errorf("Second retry delay %v shorter than jitter floor", secondDelay)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	var attempts []time.Time
	policy := func(ErrorClass) RetryConfig {
		return RetryConfig{
			MaxAttempts:       4,
			InitialBackoff:    10 * time.Millisecond,
			MaxBackoff:        15 * time.Millisecond,
			BackoffMultiplier: 10.0,
		}
	}
	fn := func() error {
		attempts = append(attempts, time.Now())
		return errors.New("error")
	}

	_ = retryWithBackoff(context.Background(), policy, fn, classOf(ErrorClassNetwork))

	if len(attempts) != 4 {
		t.Fatalf("Expected 4 attempts, got %d", len(attempts))
	}
	// capped at 15ms, +20% jitter and scheduling slack
	if last := attempts[3].Sub(attempts[2]); last > 500*time.Millisecond {
		t.Errorf("Last delay %v not capped", last)
	}
}

func TestRetryWithBackoff_NilPolicyUsesDefaults(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), nil, func() error {
		callCount++
		return errors.New("bad request")
	}, classOf(ErrorClassClient))

	if err == nil || callCount != 1 {
		t.Errorf("got err=%v calls=%d, want error after 1 call", err, callCount)
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	rc := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, BackoffMultiplier: 2}

	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := rc.delay(tt.n); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}

	for i := 0; i < 100; i++ {
		if d := withJitter(time.Second); d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("withJitter(1s) = %v, outside ±20%%", d)
		}
	}
}

func TestRetryWithBackoff_RetryAfterIsMinimumWait(t *testing.T) {
	callCount := 0
	fn := func() error {
		callCount++
		if callCount == 1 {
			return &FetchError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: 150 * time.Millisecond}
		}
		return nil
	}

	start := time.Now()
	err := retryWithBackoff(context.Background(), fastPolicy(time.Millisecond), fn, ClassOf)
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got %d", callCount)
	}
	if duration < 150*time.Millisecond {
		t.Errorf("Expected to wait out Retry-After, waited %v", duration)
	}
}

func TestRetryWithBackoff_LocalRateLimitIsFinal(t *testing.T) {
	callCount := 0
	fn := func() error {
		callCount++
		return &FetchError{ErrorClass: ErrorClassRateLimit, Message: "blocked locally", Err: ErrRateLimited}
	}

	err := retryWithBackoff(context.Background(), fastPolicy(time.Millisecond), fn, ClassOf)

	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for a local rejection")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}
