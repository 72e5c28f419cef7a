package ratelimit

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// RetryStrategy defines the backoff intervals for rate limit retries
type RetryStrategy struct {
	Intervals  []time.Duration
	MaxRetries int
}

// DefaultRetryStrategy backs off from one to fifteen minutes. Nearmap quotas
// reset per minute, so the waits are much shorter than for scraped sources.
func DefaultRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		Intervals: []time.Duration{
			1 * time.Minute,
			2 * time.Minute,
			5 * time.Minute,
			10 * time.Minute,
			15 * time.Minute,
		},
		MaxRetries: 10,
	}
}

// Event describes the current throttling state of one provider
type Event struct {
	Timestamp    time.Time `json:"timestamp" ts_type:"string"`
	Provider     string    `json:"provider"`
	StatusCode   int       `json:"statusCode"`
	RetryAttempt int       `json:"retryAttempt"` // 0 = first occurrence
	NextRetryAt  time.Time `json:"nextRetryAt" ts_type:"string"`
	Message      string    `json:"message"`
}

// Handler tracks which providers are throttled and when to try them again
type Handler struct {
	mu               sync.RWMutex
	limited          map[string]*Event
	strategy         *RetryStrategy
	onRateLimit      func(event Event)
	onRetry          func(event Event)
	onRecovered      func(provider string)
	autoRetryEnabled bool
	now              func() time.Time
	ctx              context.Context
	cancel           context.CancelFunc
}

// NewHandler creates a new rate limit handler
func NewHandler(strategy *RetryStrategy) *Handler {
	if strategy == nil || len(strategy.Intervals) == 0 {
		strategy = DefaultRetryStrategy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Handler{
		limited:          make(map[string]*Event),
		strategy:         strategy,
		autoRetryEnabled: true,
		now:              time.Now,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// SetOnRateLimit sets the callback for rate limit events
func (h *Handler) SetOnRateLimit(callback func(event Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRateLimit = callback
}

// SetOnRetry sets the callback for retry attempts
func (h *Handler) SetOnRetry(callback func(event Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRetry = callback
}

// SetOnRecovered sets the callback for recovery from rate limit
func (h *Handler) SetOnRecovered(callback func(provider string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecovered = callback
}

// IsRateLimited reports whether provider is throttled and its retry time has
// not yet passed.
func (h *Handler) IsRateLimited(provider string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	event, limited := h.limited[provider]
	return limited && h.now().Before(event.NextRetryAt)
}

// IsRateLimitStatus reports whether an HTTP status means "slow down".
func IsRateLimitStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == 509 // Bandwidth Limit Exceeded
}

// CheckResponse records resp against provider and reports whether it was a
// rate limit response. A successful response clears an earlier limit.
func (h *Handler) CheckResponse(provider string, resp *http.Response) bool {
	if !IsRateLimitStatus(resp.StatusCode) {
		if resp.StatusCode < 400 {
			h.checkRecovery(provider)
		}
		return false
	}

	h.recordRateLimit(provider, resp.StatusCode)
	return true
}

func (h *Handler) recordRateLimit(provider string, statusCode int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	retryAttempt := 0
	if existing, ok := h.limited[provider]; ok {
		retryAttempt = existing.RetryAttempt + 1
	}

	interval := h.strategy.Intervals[len(h.strategy.Intervals)-1]
	if retryAttempt < len(h.strategy.Intervals) {
		interval = h.strategy.Intervals[retryAttempt]
	}

	now := h.now()
	event := Event{
		Timestamp:    now,
		Provider:     provider,
		StatusCode:   statusCode,
		RetryAttempt: retryAttempt,
		NextRetryAt:  now.Add(interval),
		Message:      buildMessage(provider, statusCode, retryAttempt, interval),
	}
	h.limited[provider] = &event

	log.Printf("[RateLimit] %s rate limited (attempt %d). Next retry at %s",
		provider, retryAttempt, event.NextRetryAt.Format(time.RFC3339))

	if h.onRateLimit != nil {
		go h.onRateLimit(event)
	}

	if h.autoRetryEnabled && retryAttempt < h.strategy.MaxRetries {
		go h.scheduleRetry(provider, event)
	}
}

// scheduleRetry notifies listeners once the backoff interval has elapsed.
// The next tile request after that goes upstream again.
func (h *Handler) scheduleRetry(provider string, event Event) {
	wait := event.NextRetryAt.Sub(event.Timestamp)

	select {
	case <-time.After(wait):
		h.mu.RLock()
		current, ok := h.limited[provider]
		stale := !ok || !current.Timestamp.Equal(event.Timestamp)
		onRetry := h.onRetry
		h.mu.RUnlock()
		if stale {
			return
		}

		log.Printf("[RateLimit] Retry window open for %s after %s", provider, wait)
		if onRetry != nil {
			go onRetry(event)
		}

	case <-h.ctx.Done():
		return
	}
}

func (h *Handler) checkRecovery(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.limited[provider]; ok {
		delete(h.limited, provider)
		log.Printf("[RateLimit] %s rate limit cleared", provider)

		if h.onRecovered != nil {
			go h.onRecovered(provider)
		}
	}
}

// ManualRetry clears the limit for provider so the next request goes upstream
func (h *Handler) ManualRetry(provider string) {
	h.mu.Lock()
	event, ok := h.limited[provider]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.limited, provider)
	onRetry := h.onRetry
	h.mu.Unlock()

	log.Printf("[RateLimit] Manual retry requested for %s", provider)
	if onRetry != nil {
		go onRetry(*event)
	}
}

// SetAutoRetry enables or disables automatic retries
func (h *Handler) SetAutoRetry(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.autoRetryEnabled = enabled
}

// GetCurrentState returns a copy of the provider's rate limit state, or nil
func (h *Handler) GetCurrentState(provider string) *Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if event, ok := h.limited[provider]; ok {
		eventCopy := *event
		return &eventCopy
	}
	return nil
}

func buildMessage(provider string, statusCode int, retryAttempt int, wait time.Duration) string {
	minutes := int(wait.Minutes())
	if retryAttempt == 0 {
		return fmt.Sprintf(
			"%s is throttling requests (HTTP %d). Tile loading paused.\n\n"+
				"Imagery will resume automatically in %d minute(s), or click 'Retry Now'.",
			provider, statusCode, minutes)
	}
	return fmt.Sprintf(
		"%s is still throttling requests (attempt %d). Next automatic retry in %d minute(s).",
		provider, retryAttempt+1, minutes)
}

// Close shuts down the rate limit handler
func (h *Handler) Close() {
	h.cancel()
}
