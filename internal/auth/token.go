package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Key ids look like gs_key_<16 hex>; tokens like gs_sk_<64 hex>. The first
// TokenPrefixLength hex characters of a token's secret are stored in clear
// so a presented token can be matched to its row before the bcrypt compare.
const (
	KeyIDPrefix       = "gs_key_"
	TokenPrefix       = "gs_sk_" // #nosec G101 -- literal prefix, not a credential
	TokenPrefixLength = 8

	keyIDBytes  = 8
	secretBytes = 32
)

// bcryptCost is lowered by tests.
var bcryptCost = 12

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// secretOf strips the token prefix. ok is false when the prefix is absent.
func secretOf(token string) (string, bool) {
	return strings.CutPrefix(token, TokenPrefix)
}

// GenerateKeyID returns a fresh key id.
func GenerateKeyID() (string, error) {
	s, err := randomHex(keyIDBytes)
	if err != nil {
		return "", fmt.Errorf("generate key ID: %w", err)
	}
	return KeyIDPrefix + s, nil
}

// GenerateToken returns a raw token and the lookup prefix to store beside its hash.
func GenerateToken() (token, lookup string, err error) {
	s, err := randomHex(secretBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + s, s[:TokenPrefixLength], nil
}

// HashToken bcrypts the secret part of token.
func HashToken(token string) (string, error) {
	secret, _ := secretOf(token)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// VerifyToken reports whether token matches a hash produced by HashToken.
// Static keys from server config may be arbitrary strings without the prefix.
func VerifyToken(token, hash string) bool {
	secret, _ := secretOf(token)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ExtractTokenPrefix returns the lookup prefix of a presented token.
func ExtractTokenPrefix(token string) string {
	secret, _ := secretOf(token)
	if len(secret) > TokenPrefixLength {
		secret = secret[:TokenPrefixLength]
	}
	return secret
}

// IsValidTokenFormat checks the prefix, length and hex alphabet.
func IsValidTokenFormat(token string) bool {
	secret, ok := secretOf(token)
	if !ok || len(secret) != 2*secretBytes {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}
