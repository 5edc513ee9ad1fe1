// Package auth manages the long-lived bearer credential for back-office
// operators, separate from the sentinel session token. The gate revokes a
// credential here when a session is terminated by policy.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/kordun/tresor/internal/idgen"
)

// Token is one issued credential.
type Token struct {
	Value     string
	UserID    string
	Role      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the token has passed its lifetime.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// DefaultTokenLifetime bounds how long a credential stays valid.
const DefaultTokenLifetime = 8 * time.Hour

// Manager issues, validates, and revokes credentials. In-memory: operator
// logins do not survive a restart, which is acceptable for a back office
// fronted by an IdP.
type Manager struct {
	mu       sync.RWMutex
	tokens   map[string]*Token
	lifetime time.Duration
}

// NewManager creates a credential manager.
func NewManager() *Manager {
	return &Manager{
		tokens:   make(map[string]*Token),
		lifetime: DefaultTokenLifetime,
	}
}

// Issue creates a credential for a user.
func (m *Manager) Issue(userID, role string) *Token {
	t := &Token{
		Value:     "tok_" + idgen.Hex(24),
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(m.lifetime),
	}

	m.mu.Lock()
	m.tokens[t.Value] = t
	m.mu.Unlock()
	return t
}

// Validate returns the live token for a credential value.
func (m *Manager) Validate(value string) (*Token, bool) {
	m.mu.RLock()
	t, ok := m.tokens[value]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if t.IsExpired() {
		m.Revoke(value)
		return nil, false
	}
	return t, true
}

// Revoke invalidates a single credential.
func (m *Manager) Revoke(value string) {
	m.mu.Lock()
	delete(m.tokens, value)
	m.mu.Unlock()
}

// RevokeUser invalidates every credential held by a user.
func (m *Manager) RevokeUser(userID string) {
	m.mu.Lock()
	for value, t := range m.tokens {
		if t.UserID == userID {
			delete(m.tokens, value)
		}
	}
	m.mu.Unlock()
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
