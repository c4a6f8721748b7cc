// Package auth holds the bearer token and the identity decoded from it. The
// engine only consumes the token accessor; storage and decoding live here so
// no other package touches credentials.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Claims decoded from the bearer token payload. Display-only: the client
// never verifies the signature, the backend does.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Expiry   int64  `json:"exp"`
}

// DecodeClaims extracts the claims from a JWT without verifying it.
func DecodeClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.Wrap(err, "decoding token payload")
	}
	claims := &Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, errors.Wrap(err, "unmarshaling claims")
	}
	return claims, nil
}

// Auth is the persisted session. Safe for concurrent use: the transport
// reads the token while the user logs in or out.
type Auth struct {
	path string

	mu     sync.Mutex
	token  string
	claims *Claims
}

// Load reads the credentials file if present. A missing or invalid file
// yields a logged-out session, never an error.
func Load(path string) *Auth {
	a := &Auth{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		return a
	}
	token := strings.TrimSpace(string(raw))
	claims, err := DecodeClaims(token)
	if err != nil {
		return a
	}
	a.token = token
	a.claims = claims
	return a
}

// Token returns the current bearer token, empty when logged out.
func (a *Auth) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// UserID of the logged-in user, empty when logged out or expired.
func (a *Auth) UserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claims == nil || a.expired() {
		return ""
	}
	return a.claims.UserID
}

// Claims returns a copy of the decoded claims, nil when logged out.
func (a *Auth) Claims() *Claims {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claims == nil {
		return nil
	}
	claims := *a.claims
	return &claims
}

// LoggedIn reports whether a non-expired session is held.
func (a *Auth) LoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claims != nil && !a.expired()
}

// expired reports token expiry. Callers hold the lock.
func (a *Auth) expired() bool {
	return a.claims.Expiry != 0 && time.Now().Unix() >= a.claims.Expiry
}

// SetToken installs and persists a freshly issued token.
func (a *Auth) SetToken(token string) error {
	claims, err := DecodeClaims(token)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.token = token
	a.claims = claims
	a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return errors.Wrap(err, "creating credentials dir")
	}
	if err := os.WriteFile(a.path, []byte(token), 0600); err != nil {
		return errors.Wrap(err, "writing credentials")
	}
	return nil
}

// Logout clears the session and removes the credentials file.
func (a *Auth) Logout() error {
	a.mu.Lock()
	a.token = ""
	a.claims = nil
	a.mu.Unlock()

	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing credentials")
	}
	return nil
}
