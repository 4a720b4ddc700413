package auth

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"genestore/internal/errors"
)

// ManagerConfig is the [auth] table of the server tunables file.
type ManagerConfig struct {
	Enabled      bool              `toml:"enabled" json:"enabled"`
	DefaultUser  string            `toml:"default_user" json:"default_user"`
	StaticKeys   []StaticKeyConfig `toml:"static_keys" json:"static_keys"`
	RateLimiting RateLimitConfig   `toml:"rate_limiting" json:"rate_limiting"`
}

// StaticKeyConfig is a key declared in configuration rather than issued by
// the CLI. Token may name an environment variable as $VAR or ${VAR}.
type StaticKeyConfig struct {
	ID              string   `toml:"id" json:"id"`
	Name            string   `toml:"name" json:"name"`
	UserID          string   `toml:"user_id" json:"user_id"`
	Token           string   `toml:"token" json:"token"`
	Scopes          []string `toml:"scopes" json:"scopes"`
	ProjectPatterns []string `toml:"project_patterns" json:"project_patterns"`
	RateLimit       *int     `toml:"rate_limit" json:"rate_limit"`
}

// DefaultManagerConfig leaves auth off; every request acts as "local".
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultUser:  "local",
		RateLimiting: DefaultRateLimitConfig(),
	}
}

// Manager resolves bearer tokens to identities. Static keys live in memory
// and are immutable after NewManager; issued keys live in the KeyStore.
type Manager struct {
	config  ManagerConfig
	store   *KeyStore
	limiter *RateLimiter
	logger  *slog.Logger
	static  map[string]*APIKey
}

// NewManager builds a manager. db may be nil, in which case only static
// keys authenticate and key management calls return ErrStoreNotInitialized.
func NewManager(config ManagerConfig, db *sql.DB, logger *slog.Logger) (*Manager, error) {
	if config.DefaultUser == "" {
		config.DefaultUser = DefaultManagerConfig().DefaultUser
	}

	m := &Manager{
		config:  config,
		limiter: NewRateLimiter(config.RateLimiting, logger),
		logger:  logger,
		static:  make(map[string]*APIKey, len(config.StaticKeys)),
	}
	if db != nil {
		m.store = NewKeyStore(db, logger)
		if err := m.store.InitSchema(); err != nil {
			return nil, err
		}
	}

	for _, sk := range config.StaticKeys {
		key, err := staticKey(sk)
		if err != nil {
			return nil, errors.Wrap(err, "static key "+sk.ID)
		}
		m.static[key.ID] = key
	}

	logger.Debug("Auth manager ready",
		"enabled", config.Enabled,
		"static_keys", len(m.static),
		"key_store", m.store != nil,
		"rate_limiting", config.RateLimiting.Enabled,
	)
	return m, nil
}

func staticKey(sk StaticKeyConfig) (*APIKey, error) {
	token := expandEnvVars(sk.Token)
	hash, err := HashToken(token)
	if err != nil {
		return nil, err
	}

	scopes := make([]Scope, len(sk.Scopes))
	for i, s := range sk.Scopes {
		scopes[i] = Scope(s)
	}
	userID := sk.UserID
	if userID == "" {
		userID = sk.ID
	}
	return &APIKey{
		ID:              sk.ID,
		Name:            sk.Name,
		UserID:          userID,
		TokenHash:       hash,
		TokenPrefix:     ExtractTokenPrefix(token),
		Scopes:          scopes,
		ProjectPatterns: sk.ProjectPatterns,
		RateLimit:       sk.RateLimit,
		CreatedAt:       time.Now(),
	}, nil
}

// expandEnvVars resolves a whole-value $VAR or ${VAR} reference.
func expandEnvVars(s string) string {
	if name, ok := strings.CutPrefix(s, "${"); ok && strings.HasSuffix(name, "}") {
		return os.Getenv(strings.TrimSuffix(name, "}"))
	}
	if name, ok := strings.CutPrefix(s, "$"); ok {
		return os.Getenv(name)
	}
	return s
}

// Enabled reports whether tokens are checked at all.
func (m *Manager) Enabled() bool {
	return m.config.Enabled
}

// Authenticate resolves token to an identity holding the required scope.
// Missing, unknown, revoked and expired tokens fail with InvalidSessionKey.
// A key without the scope, or over its request budget, fails with NotAllowed.
func (m *Manager) Authenticate(token string, required Scope) (*Identity, error) {
	if !m.config.Enabled {
		return &Identity{UserID: m.config.DefaultUser, Scopes: []Scope{ScopeAdmin}}, nil
	}
	if token == "" {
		return nil, invalidSession("authorization header required")
	}

	key := m.lookup(token)
	switch {
	case key == nil:
		m.audit(AuditEventAuthFailed, nil, map[string]string{"prefix": ExtractTokenPrefix(token)})
		return nil, invalidSession("invalid API key")
	case key.Revoked:
		return nil, invalidSession("API key has been revoked")
	case key.IsExpired():
		return nil, invalidSession("API key has expired")
	case !key.HasScope(required):
		return nil, errors.Newf(errors.NotAllowed, "API key lacks %s scope", required)
	}

	if ok, retryAfter := m.limiter.Allow(key.ID, key.RateLimit); !ok {
		m.audit(AuditEventRateLimited, key, nil)
		return nil, errors.New(errors.NotAllowed, "rate limit exceeded", nil).
			WithDetails(RateLimitDetails{RetryAfter: retryAfter})
	}

	if _, isStatic := m.static[key.ID]; !isStatic && m.store != nil {
		if err := m.store.UpdateLastUsed(key.ID, time.Now()); err != nil {
			m.logger.Warn("Could not record key use", "key_id", key.ID, "error", err.Error())
		}
	}

	return &Identity{
		UserID:          key.UserID,
		KeyID:           key.ID,
		KeyName:         key.Name,
		Scopes:          key.Scopes,
		ProjectPatterns: key.ProjectPatterns,
	}, nil
}

// lookup narrows candidates by token prefix before paying for bcrypt.
func (m *Manager) lookup(token string) *APIKey {
	prefix := ExtractTokenPrefix(token)
	for _, key := range m.static {
		if key.TokenPrefix == prefix && VerifyToken(token, key.TokenHash) {
			return key
		}
	}
	if m.store == nil {
		return nil
	}

	candidates, err := m.store.GetByTokenPrefix(prefix)
	if err != nil {
		m.logger.Error("Key lookup failed", "prefix", prefix, "error", err.Error())
		return nil
	}
	for _, key := range candidates {
		if VerifyToken(token, key.TokenHash) {
			return key
		}
	}
	return nil
}

// newSecret returns a fresh token with its lookup prefix and hash.
func newSecret() (token, prefix, hash string, err error) {
	token, prefix, err = GenerateToken()
	if err != nil {
		return "", "", "", err
	}
	hash, err = HashToken(token)
	if err != nil {
		return "", "", "", err
	}
	return token, prefix, hash, nil
}

// CreateKey issues a stored key. The raw token is returned once and never
// persisted; the returned key has its hash cleared.
func (m *Manager) CreateKey(opts CreateKeyOptions) (*APIKey, string, error) {
	if err := opts.Validate(); err != nil {
		return nil, "", err
	}
	if m.store == nil {
		return nil, "", ErrStoreNotInitialized
	}

	id, err := GenerateKeyID()
	if err != nil {
		return nil, "", err
	}
	token, prefix, hash, err := newSecret()
	if err != nil {
		return nil, "", err
	}

	key := &APIKey{
		ID:              id,
		Name:            opts.Name,
		UserID:          opts.UserID,
		TokenHash:       hash,
		TokenPrefix:     prefix,
		Scopes:          opts.Scopes,
		ProjectPatterns: opts.ProjectPatterns,
		RateLimit:       opts.RateLimit,
		ExpiresAt:       opts.ExpiresAt,
		CreatedAt:       time.Now(),
		CreatedBy:       opts.CreatedBy,
	}
	if err := m.store.Save(key); err != nil {
		return nil, "", errors.Wrap(err, "save API key")
	}

	m.audit(AuditEventKeyCreated, key, map[string]string{"created_by": opts.CreatedBy})
	m.logger.Info("API key created", "key_id", key.ID, "user_id", key.UserID)
	return redact(key), token, nil
}

// RevokeKey marks a stored key revoked. Static keys cannot be revoked.
func (m *Manager) RevokeKey(id string) error {
	key, err := m.storedKey(id)
	if err != nil {
		return err
	}

	now := time.Now()
	key.Revoked = true
	key.RevokedAt = &now
	if err := m.store.Update(key); err != nil {
		return err
	}
	m.limiter.Reset(id)

	m.audit(AuditEventKeyRevoked, key, nil)
	m.logger.Info("API key revoked", "key_id", key.ID, "user_id", key.UserID)
	return nil
}

// RotateKey replaces the token of a stored key, keeping its id and grants.
func (m *Manager) RotateKey(id string) (*APIKey, string, error) {
	key, err := m.storedKey(id)
	if err != nil {
		return nil, "", err
	}

	token, prefix, hash, err := newSecret()
	if err != nil {
		return nil, "", err
	}
	key.TokenHash = hash
	key.TokenPrefix = prefix
	if err := m.store.Update(key); err != nil {
		return nil, "", err
	}
	m.limiter.Reset(id)

	m.audit(AuditEventKeyRotated, key, nil)
	return redact(key), token, nil
}

func (m *Manager) storedKey(id string) (*APIKey, error) {
	if m.store == nil {
		return nil, ErrStoreNotInitialized
	}
	return m.store.GetByID(id)
}

// ListKeys returns static keys (sorted by id) followed by stored keys, all
// redacted. An empty userID lists every user's keys.
func (m *Manager) ListKeys(userID string, includeRevoked bool) ([]*APIKey, error) {
	var keys []*APIKey
	for _, key := range m.static {
		if userID == "" || key.UserID == userID {
			keys = append(keys, redact(key))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })

	if m.store == nil {
		return keys, nil
	}
	stored, err := m.store.List(userID, includeRevoked)
	if err != nil {
		return nil, err
	}
	for _, key := range stored {
		keys = append(keys, redact(key))
	}
	return keys, nil
}

// GetKey returns one key, static or stored, with its hash cleared.
func (m *Manager) GetKey(id string) (*APIKey, error) {
	if key, ok := m.static[id]; ok {
		return redact(key), nil
	}
	if m.store == nil {
		return nil, ErrKeyNotFound
	}
	key, err := m.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	return redact(key), nil
}

func redact(key *APIKey) *APIKey {
	k := *key
	k.TokenHash = ""
	return &k
}

// audit records an event when a key store is attached. key may be nil.
func (m *Manager) audit(eventType string, key *APIKey, details map[string]string) {
	if m.store == nil {
		return
	}
	event := AuditEvent{EventType: eventType, Details: details, OccurredAt: time.Now()}
	if key != nil {
		event.KeyID = key.ID
		event.KeyName = key.Name
		event.UserID = key.UserID
	}
	if err := m.store.LogAuditEvent(event); err != nil {
		m.logger.Warn("Could not write audit event", "event_type", eventType, "error", err.Error())
	}
}

// StartBackgroundTasks runs rate limiter cleanup until ctx is done.
func (m *Manager) StartBackgroundTasks(ctx context.Context) {
	m.limiter.StartCleanup(ctx)
}
