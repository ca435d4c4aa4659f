package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the token payload issued by the user service.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Manager holds the auth state of one storefront session. It decides which
// backend owns the cart: an authenticated session is served by the remote
// cart resource, everything else by the local guest store.
//
// IsAuthenticated never fails: an absent, malformed, wrongly signed or
// expired token all answer false, which is the safe direction — a guest
// cart is locally recoverable, while addressing the wrong server cart is
// not.
type Manager struct {
	mu        sync.RWMutex
	token     string
	secret    []byte
	sessionID string
}

func NewManager(jwtSecret string) *Manager {
	return &Manager{
		secret:    []byte(jwtSecret),
		sessionID: uuid.NewString(),
	}
}

// SessionID identifies this session in the guest cart store. It is stable
// for the lifetime of the Manager and independent of auth state.
func (m *Manager) SessionID() string {
	return m.sessionID
}

func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

func (m *Manager) ClearToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
}

// Token returns the current bearer token, empty for guest sessions.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) IsAuthenticated() bool {
	_, err := m.CurrentClaims()
	return err == nil
}

// CurrentClaims validates the held token and returns its claims.
func (m *Manager) CurrentClaims() (*Claims, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == "" {
		return nil, fmt.Errorf("no session token set")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("failed to validate session token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, jwt.ErrTokenExpired
	}
	return claims, nil
}
