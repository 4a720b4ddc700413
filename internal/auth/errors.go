package auth

import (
	"genestore/internal/errors"
)

var (
	// Validation errors
	ErrNameRequired     = errors.New(errors.InvalidModel, "name is required", nil)
	ErrUserRequired     = errors.New(errors.NoIdProvided, "user id is required", nil)
	ErrScopesRequired   = errors.New(errors.InvalidModel, "at least one scope is required", nil)
	ErrInvalidScope     = errors.New(errors.InvalidModel, "invalid scope", nil)
	ErrInvalidPattern   = errors.New(errors.InvalidModel, "invalid project pattern", nil)
	ErrInvalidRateLimit = errors.New(errors.InvalidModel, "rate limit must be positive", nil)

	// Key lookup errors
	ErrKeyNotFound = errors.New(errors.DoesNotExist, "API key not found", nil)

	// Store errors
	ErrStoreNotInitialized = errors.New(errors.IOError, "key store not initialized", nil)
)

// RateLimitDetails is attached to the NotAllowed error returned when a key is
// over its request budget.
type RateLimitDetails struct {
	RetryAfter int `json:"retryAfter"`
}

func invalidSession(message string) error {
	return errors.New(errors.InvalidSessionKey, message, nil)
}
