package auth

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// KeyStore persists API keys and the auth audit log in the central database.
// Timestamps are unix seconds; a key is revoked iff revoked_at is set.
type KeyStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewKeyStore(db *sql.DB, logger *slog.Logger) *KeyStore {
	return &KeyStore{db: db, logger: logger}
}

var keyStoreSchema = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		token_hash       TEXT NOT NULL,
		token_prefix     TEXT NOT NULL,
		scopes           TEXT NOT NULL,
		project_patterns TEXT NOT NULL DEFAULT '',
		rate_limit       INTEGER,
		created_by       TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL,
		expires_at       INTEGER,
		last_used_at     INTEGER,
		revoked_at       INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(token_prefix)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id)`,
	`CREATE TABLE IF NOT EXISTS auth_audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type  TEXT NOT NULL,
		key_id      TEXT NOT NULL DEFAULT '',
		user_id     TEXT NOT NULL DEFAULT '',
		details     TEXT NOT NULL DEFAULT '{}',
		occurred_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_auth_audit_type ON auth_audit_log(event_type, occurred_at)`,
}

// InitSchema creates the key tables if they are missing.
func (s *KeyStore) InitSchema() error {
	for _, stmt := range keyStoreSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init key schema: %w", err)
		}
	}
	return nil
}

const keyColumns = `id, name, user_id, token_hash, token_prefix, scopes, project_patterns,
	rate_limit, created_by, created_at, expires_at, last_used_at, revoked_at`

func (s *KeyStore) Save(key *APIKey) error {
	_, err := s.db.Exec(`INSERT INTO api_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Name, key.UserID, key.TokenHash, key.TokenPrefix,
		joinScopes(key.Scopes), strings.Join(key.ProjectPatterns, "\n"),
		nullInt(key.RateLimit), key.CreatedBy, key.CreatedAt.Unix(),
		unixOrNull(key.ExpiresAt), unixOrNull(key.LastUsedAt), revokedAt(key),
	)
	if err != nil {
		return fmt.Errorf("insert key %s: %w", key.ID, err)
	}
	s.logger.Debug("API key saved", "key_id", key.ID, "user_id", key.UserID)
	return nil
}

// GetByID returns ErrKeyNotFound for unknown ids.
func (s *KeyStore) GetByID(id string) (*APIKey, error) {
	key, err := scanKey(s.db.QueryRow(`SELECT `+keyColumns+` FROM api_keys WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	return key, err
}

// GetByTokenPrefix returns candidate keys for a presented token.
func (s *KeyStore) GetByTokenPrefix(prefix string) ([]*APIKey, error) {
	return s.query(`SELECT `+keyColumns+` FROM api_keys WHERE token_prefix = ?`, prefix)
}

// List returns keys newest first. An empty userID lists every user's keys.
func (s *KeyStore) List(userID string, includeRevoked bool) ([]*APIKey, error) {
	var where []string
	var args []any
	if userID != "" {
		where = append(where, "user_id = ?")
		args = append(args, userID)
	}
	if !includeRevoked {
		where = append(where, "revoked_at IS NULL")
	}
	q := `SELECT ` + keyColumns + ` FROM api_keys`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return s.query(q+" ORDER BY created_at DESC, id", args...)
}

// Update rewrites the mutable columns of an existing key.
func (s *KeyStore) Update(key *APIKey) error {
	res, err := s.db.Exec(`UPDATE api_keys SET
			name = ?, token_hash = ?, token_prefix = ?, scopes = ?, project_patterns = ?,
			rate_limit = ?, expires_at = ?, last_used_at = ?, revoked_at = ?
		WHERE id = ?`,
		key.Name, key.TokenHash, key.TokenPrefix,
		joinScopes(key.Scopes), strings.Join(key.ProjectPatterns, "\n"),
		nullInt(key.RateLimit), unixOrNull(key.ExpiresAt), unixOrNull(key.LastUsedAt), revokedAt(key),
		key.ID,
	)
	if err != nil {
		return fmt.Errorf("update key %s: %w", key.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *KeyStore) UpdateLastUsed(id string, lastUsed time.Time) error {
	_, err := s.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, lastUsed.Unix(), id)
	return err
}

// LogAuditEvent appends to auth_audit_log. KeyName is folded into details.
func (s *KeyStore) LogAuditEvent(event AuditEvent) error {
	details := make(map[string]string, len(event.Details)+1)
	for k, v := range event.Details {
		details[k] = v
	}
	if event.KeyName != "" {
		details["key_name"] = event.KeyName
	}
	b, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO auth_audit_log (event_type, key_id, user_id, details, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.EventType, event.KeyID, event.UserID, string(b), event.OccurredAt.Unix())
	return err
}

func (s *KeyStore) CountAuditEvents(eventType string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM auth_audit_log WHERE event_type = ?`, eventType).Scan(&n)
	return n, err
}

func (s *KeyStore) query(q string, args ...any) ([]*APIKey, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var (
		key                            APIKey
		scopes, patterns               string
		rateLimit                      sql.Null[int64]
		createdAt                      int64
		expiresAt, lastUsed, revokedAt sql.Null[int64]
	)
	err := row.Scan(&key.ID, &key.Name, &key.UserID, &key.TokenHash, &key.TokenPrefix,
		&scopes, &patterns, &rateLimit, &key.CreatedBy, &createdAt,
		&expiresAt, &lastUsed, &revokedAt)
	if err != nil {
		return nil, err
	}

	for _, s := range strings.Split(scopes, ",") {
		if s != "" {
			key.Scopes = append(key.Scopes, Scope(s))
		}
	}
	if patterns != "" {
		key.ProjectPatterns = strings.Split(patterns, "\n")
	}
	if rateLimit.Valid {
		rl := int(rateLimit.V)
		key.RateLimit = &rl
	}
	key.CreatedAt = time.Unix(createdAt, 0)
	key.ExpiresAt = fromUnix(expiresAt)
	key.LastUsedAt = fromUnix(lastUsed)
	key.RevokedAt = fromUnix(revokedAt)
	key.Revoked = revokedAt.Valid
	return &key, nil
}

func joinScopes(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// revokedAt keeps the column non-null for revoked keys that lack a timestamp.
func revokedAt(key *APIKey) any {
	if !key.Revoked {
		return nil
	}
	if key.RevokedAt == nil {
		return time.Now().Unix()
	}
	return key.RevokedAt.Unix()
}

func unixOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromUnix(v sql.Null[int64]) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.V, 0)
	return &t
}
