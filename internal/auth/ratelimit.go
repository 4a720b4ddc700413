package auth

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// RateLimitConfig bounds how fast one API key may call the server.
type RateLimitConfig struct {
	Enabled         bool `toml:"enabled" json:"enabled"`
	DefaultLimit    int  `toml:"default_limit" json:"default_limit"`       // requests per minute
	BurstSize       int  `toml:"burst_size" json:"burst_size"`             // requests allowed back to back
	CleanupInterval int  `toml:"cleanup_interval" json:"cleanup_interval"` // seconds between sweeps of idle keys
}

// DefaultRateLimitConfig returns the limits used when the server config has none.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:         false,
		DefaultLimit:    60,
		BurstSize:       10,
		CleanupInterval: 300,
	}
}

// idleAfter is how long a key may go unused before its budget is dropped.
const idleAfter = 10 * time.Minute

// RateLimiter keeps a request budget per API key. A key earns its
// per-minute limit continuously and may hold at most BurstSize requests.
type RateLimiter struct {
	cfg    RateLimitConfig
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	budgets map[string]*budget
}

type budget struct {
	available float64
	updated   time.Time
}

// NewRateLimiter fills unset limits from DefaultRateLimitConfig.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = defaults.BurstSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		budgets: make(map[string]*budget),
	}
}

// Allow spends one request from keyID's budget. keyLimit overrides the
// default per-minute limit for keys that carry their own. A refused
// request reports the whole seconds until the next one would be allowed.
func (r *RateLimiter) Allow(keyID string, keyLimit *int) (bool, int) {
	if !r.cfg.Enabled {
		return true, 0
	}

	perMinute := r.cfg.DefaultLimit
	if keyLimit != nil && *keyLimit > 0 {
		perMinute = *keyLimit
	}
	perSecond := float64(perMinute) / 60
	burst := float64(r.cfg.BurstSize)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.budgets[keyID]
	if !ok {
		b = &budget{available: burst, updated: now}
		r.budgets[keyID] = b
	}
	b.available = math.Min(burst, b.available+now.Sub(b.updated).Seconds()*perSecond)
	b.updated = now

	if b.available >= 1 {
		b.available--
		return true, 0
	}
	wait := (1 - b.available) / perSecond
	return false, int(math.Ceil(wait))
}

// Reset restores a key's full burst, e.g. after it is revoked or rotated.
func (r *RateLimiter) Reset(keyID string) {
	r.mu.Lock()
	delete(r.budgets, keyID)
	r.mu.Unlock()
}

// StartCleanup sweeps idle budgets until ctx is done.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	if !r.cfg.Enabled {
		return
	}
	ticker := time.NewTicker(time.Duration(r.cfg.CleanupInterval) * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *RateLimiter) sweep() int {
	cutoff := r.now().Add(-idleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for keyID, b := range r.budgets {
		if b.updated.Before(cutoff) {
			delete(r.budgets, keyID)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("Dropped idle rate limit budgets", "removed", removed, "remaining", len(r.budgets))
	}
	return removed
}
