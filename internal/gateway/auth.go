package gateway

import (
	"crypto/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pquerna/otp/totp"
)

const sessionTTL = 12 * time.Hour

// Authenticator validates TOTP codes against a shared secret and issues
// short-lived bearer tokens for the mutating ledger endpoints. Tokens
// live in memory only; a restart logs everyone out.
type Authenticator struct {
	secret string

	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
	now      func() time.Time
}

// NewAuthenticator creates an Authenticator for the given TOTP secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret:   secret,
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Login validates a TOTP code and returns a new bearer token.
func (a *Authenticator) Login(code string) (string, bool) {
	if !totp.Validate(code, a.secret) {
		return "", false
	}
	token := ulid.MustNew(ulid.Timestamp(a.now()), rand.Reader).String()
	a.mu.Lock()
	a.sessions[token] = a.now().Add(sessionTTL)
	a.pruneLocked()
	a.mu.Unlock()
	return token, true
}

// Authorized reports whether the request carries a live bearer token.
func (a *Authenticator) Authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	expiry, exists := a.sessions[token]
	if !exists {
		return false
	}
	if a.now().After(expiry) {
		delete(a.sessions, token)
		return false
	}
	return true
}

func (a *Authenticator) pruneLocked() {
	now := a.now()
	for token, expiry := range a.sessions {
		if now.After(expiry) {
			delete(a.sessions, token)
		}
	}
}
