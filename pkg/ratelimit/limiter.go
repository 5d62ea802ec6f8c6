package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different collaborators
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Limiter names for the external collaborators
const (
	LimiterAnthropic = "anthropic"
	LimiterUnsplash  = "unsplash"
)

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// Anthropic: 10 requests per minute, burst 2
	m.AddLimiter(LimiterAnthropic, 10.0/60, 2)

	// Unsplash demo tier: 50 requests per hour, burst 5
	m.AddLimiter(LimiterUnsplash, 50.0/3600, 5)

	return m
}
