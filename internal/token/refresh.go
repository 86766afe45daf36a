package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// RefreshToken is the persisted half of an opaque refresh credential. The
// client holds "<id>.<secret>"; only the sha256 of the secret is stored.
// Tokens are single-use: redeeming one revokes it and issues a replacement.
type RefreshToken struct {
	ID        string
	AccountID string
	ClientID  string
	Scopes    []string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// RefreshStore persists refresh token records.
type RefreshStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByAccount(ctx context.Context, accountID string) error
}

func newRefreshSecret() (secret, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(secret))
	return secret, hex.EncodeToString(sum[:]), nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func refreshHashMatches(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

// MemoryRefreshStore is an in-process RefreshStore for tests and DSN-less
// development runs.
type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

// NewMemoryRefreshStore returns an empty in-memory refresh store.
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{tokens: make(map[string]*RefreshToken)}
}

func (m *MemoryRefreshStore) Create(ctx context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[tok.ID] = &cp
	return nil
}

func (m *MemoryRefreshStore) Find(ctx context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil, ErrRefreshInvalid
	}
	cp := *tok
	return &cp, nil
}

func (m *MemoryRefreshStore) MarkRevoked(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (m *MemoryRefreshStore) MarkRevokedByAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.AccountID == accountID {
			tok.Revoked = true
		}
	}
	return nil
}
