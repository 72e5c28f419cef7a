package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *time.Time) {
	t.Helper()
	h := NewHandler(&RetryStrategy{
		Intervals:  []time.Duration{time.Minute, 5 * time.Minute},
		MaxRetries: 3,
	})
	h.SetAutoRetry(false)
	t.Cleanup(h.Close)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	return h, &now
}

func TestCheckResponse_RecordsAndBacksOff(t *testing.T) {
	h, now := newTestHandler(t)

	limited := h.CheckResponse("nearmap", &http.Response{StatusCode: http.StatusTooManyRequests})
	require.True(t, limited)
	assert.True(t, h.IsRateLimited("nearmap"))

	state := h.GetCurrentState("nearmap")
	require.NotNil(t, state)
	assert.Equal(t, 0, state.RetryAttempt)
	assert.Equal(t, now.Add(time.Minute), state.NextRetryAt)

	h.CheckResponse("nearmap", &http.Response{StatusCode: 509})
	state = h.GetCurrentState("nearmap")
	assert.Equal(t, 1, state.RetryAttempt)
	assert.Equal(t, now.Add(5*time.Minute), state.NextRetryAt)

	// Past the last interval the strategy keeps using the final wait.
	h.CheckResponse("nearmap", &http.Response{StatusCode: 429})
	assert.Equal(t, now.Add(5*time.Minute), h.GetCurrentState("nearmap").NextRetryAt)
}

func TestIsRateLimited_ExpiresAfterWindow(t *testing.T) {
	h, now := newTestHandler(t)
	h.CheckResponse("nearmap", &http.Response{StatusCode: 429})

	*now = now.Add(2 * time.Minute)
	assert.False(t, h.IsRateLimited("nearmap"))
	assert.NotNil(t, h.GetCurrentState("nearmap"), "state is kept until a successful response")
}

func TestCheckResponse_SuccessClearsLimit(t *testing.T) {
	h, _ := newTestHandler(t)
	recovered := make(chan string, 1)
	h.SetOnRecovered(func(provider string) { recovered <- provider })

	h.CheckResponse("nearmap", &http.Response{StatusCode: 429})
	assert.False(t, h.CheckResponse("nearmap", &http.Response{StatusCode: 200}))
	assert.Nil(t, h.GetCurrentState("nearmap"))

	select {
	case p := <-recovered:
		assert.Equal(t, "nearmap", p)
	case <-time.After(time.Second):
		t.Fatal("recovery callback not called")
	}
}

func TestCheckResponse_AuthErrorsAreNotRateLimits(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.False(t, h.CheckResponse("nearmap", &http.Response{StatusCode: http.StatusForbidden}))
	assert.False(t, h.IsRateLimited("nearmap"))
}

func TestManualRetry(t *testing.T) {
	h, _ := newTestHandler(t)
	h.CheckResponse("nearmap", &http.Response{StatusCode: 429})

	h.ManualRetry("nearmap")
	assert.False(t, h.IsRateLimited("nearmap"))
	assert.Nil(t, h.GetCurrentState("nearmap"))

	// No-op for unknown providers.
	h.ManualRetry("other")
}
