package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Parley/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves a bearer token to the user it was issued to.
type Authenticator interface {
	Authenticate(token string) (domain.User, error)
}

// TokenTable is an Authenticator over a fixed token list, as issued by the
// external auth service and loaded from config.
type TokenTable struct {
	mu     sync.RWMutex
	tokens map[string]domain.User
}

func NewTokenTable(tokens map[string]domain.User) *TokenTable {
	t := &TokenTable{tokens: make(map[string]domain.User, len(tokens))}
	for tok, u := range tokens {
		t.tokens[tok] = u
	}
	return t
}

func (t *TokenTable) Authenticate(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrUnauthorized
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.tokens[token]
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return u, nil
}

// Issue adds or replaces a token.
func (t *TokenTable) Issue(token string, u domain.User) {
	t.mu.Lock()
	t.tokens[token] = u
	t.mu.Unlock()
}

func (t *TokenTable) Revoke(token string) {
	t.mu.Lock()
	delete(t.tokens, token)
	t.mu.Unlock()
}
