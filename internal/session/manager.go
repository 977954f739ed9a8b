package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Manager binds the session store to the browser cookie.
type Manager struct {
	store      Store
	ttl        time.Duration
	cookieName string
	secure     bool
}

// NewManager creates a Manager.
func NewManager(store Store, ttl time.Duration, cookieName string, secure bool) *Manager {
	return &Manager{store: store, ttl: ttl, cookieName: cookieName, secure: secure}
}

// Issue creates a new session for the principal and sets the cookie.
func (m *Manager) Issue(c *gin.Context, principal Principal) (string, error) {
	sessionID := uuid.NewString()
	if err := m.store.Save(c.Request.Context(), sessionID, principal, m.ttl); err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID, nil
}

// Current resolves the cookie to its principal. No cookie or an expired
// session yields (nil, "", nil).
func (m *Manager) Current(c *gin.Context) (*Principal, string, error) {
	sessionID, err := c.Cookie(m.cookieName)
	if err != nil || sessionID == "" {
		return nil, "", nil
	}
	principal, err := m.store.Get(c.Request.Context(), sessionID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve session: %w", err)
	}
	if principal == nil {
		return nil, "", nil
	}
	return principal, sessionID, nil
}

// Update rewrites the principal under an existing session ID.
func (m *Manager) Update(ctx context.Context, sessionID string, principal Principal) error {
	if err := m.store.Save(ctx, sessionID, principal, m.ttl); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Clear deletes the session and expires the cookie.
func (m *Manager) Clear(c *gin.Context) error {
	sessionID, err := c.Cookie(m.cookieName)
	if err == nil && sessionID != "" {
		if err := m.store.Delete(c.Request.Context(), sessionID); err != nil {
			return err
		}
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
