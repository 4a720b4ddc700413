// Package auth turns bearer tokens into validated user identities. Keys are
// stored bcrypt-hashed in the central database; static keys may also be
// declared in the server's TOML file.
package auth

import (
	"path"
	"time"
)

// Scope is a permission level. Each scope includes the ones below it:
// admin > write > read.
type Scope string

const (
	ScopeRead  Scope = "read"  // projects, blocks, orders, sequences
	ScopeWrite Scope = "write" // writes, saves, orders, trash deletes
	ScopeAdmin Scope = "admin" // forced deletes
)

var scopeRank = map[Scope]int{ScopeRead: 1, ScopeWrite: 2, ScopeAdmin: 3}

// ValidScopes lists scopes from least to most privileged.
func ValidScopes() []Scope {
	return []Scope{ScopeRead, ScopeWrite, ScopeAdmin}
}

func (s Scope) IsValid() bool {
	_, ok := scopeRank[s]
	return ok
}

// Includes reports whether s grants required.
func (s Scope) Includes(required Scope) bool {
	have, ok := scopeRank[s]
	if !ok {
		return false
	}
	need, ok := scopeRank[required]
	return ok && have >= need
}

// APIKey is a stored or static key. TokenHash never leaves the process.
type APIKey struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	UserID          string     `json:"user_id"`
	TokenHash       string     `json:"-"`
	TokenPrefix     string     `json:"token_prefix"`
	Scopes          []Scope    `json:"scopes"`
	ProjectPatterns []string   `json:"project_patterns,omitempty"` // path.Match globs; empty allows every project
	RateLimit       *int       `json:"rate_limit,omitempty"`       // requests per minute; nil uses the default
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CreatedBy       string     `json:"created_by,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	Revoked         bool       `json:"revoked"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

func (k *APIKey) HasScope(required Scope) bool {
	return hasScope(k.Scopes, required)
}

// CanAccessProject checks the key's project patterns against a project id.
func (k *APIKey) CanAccessProject(projectID string) bool {
	return matchesAny(k.ProjectPatterns, projectID)
}

func hasScope(scopes []Scope, required Scope) bool {
	for _, s := range scopes {
		if s.Includes(required) {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, projectID string) bool {
	if len(patterns) == 0 || projectID == "" {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, projectID); err == nil && ok {
			return true
		}
	}
	return false
}

// Identity is a validated caller. Every store operation that records
// authorship or permissions takes its UserID.
type Identity struct {
	UserID          string   `json:"user_id"`
	KeyID           string   `json:"key_id,omitempty"`
	KeyName         string   `json:"key_name,omitempty"`
	Scopes          []Scope  `json:"scopes"`
	ProjectPatterns []string `json:"project_patterns,omitempty"`
}

// Can reports whether the identity holds the required scope.
func (i *Identity) Can(required Scope) bool {
	return hasScope(i.Scopes, required)
}

// CanAccessProject reports whether the identity's key may touch projectID.
func (i *Identity) CanAccessProject(projectID string) bool {
	return matchesAny(i.ProjectPatterns, projectID)
}

// CreateKeyOptions are the inputs to Manager.CreateKey.
type CreateKeyOptions struct {
	Name            string     `json:"name"`
	UserID          string     `json:"user_id"`
	Scopes          []Scope    `json:"scopes"`
	ProjectPatterns []string   `json:"project_patterns,omitempty"`
	RateLimit       *int       `json:"rate_limit,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
}

// Validate rejects options CreateKey cannot store.
func (o *CreateKeyOptions) Validate() error {
	if o.Name == "" {
		return ErrNameRequired
	}
	if o.UserID == "" {
		return ErrUserRequired
	}
	if len(o.Scopes) == 0 {
		return ErrScopesRequired
	}
	for _, s := range o.Scopes {
		if !s.IsValid() {
			return ErrInvalidScope
		}
	}
	for _, p := range o.ProjectPatterns {
		if _, err := path.Match(p, ""); err != nil {
			return ErrInvalidPattern
		}
	}
	if o.RateLimit != nil && *o.RateLimit <= 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// AuditEvent is a row of auth_audit_log.
type AuditEvent struct {
	EventType  string            `json:"event_type"`
	KeyID      string            `json:"key_id,omitempty"`
	KeyName    string            `json:"key_name,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

const (
	AuditEventKeyCreated  = "key_created"
	AuditEventKeyRevoked  = "key_revoked"
	AuditEventKeyRotated  = "key_rotated"
	AuditEventAuthFailed  = "auth_failed"
	AuditEventRateLimited = "rate_limited"
)
