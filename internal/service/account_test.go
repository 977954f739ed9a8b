package service_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesyncer/identity/internal/domain"
)

func TestLoginSuccess(t *testing.T) {
	h := newHarness(t)

	principal, err := h.svc.Login(context.Background(), "Alice@ByteSyncer.dev", testUserPassword)
	require.NoError(t, err)
	require.Equal(t, h.user.ID, principal.Subject)
	require.Equal(t, h.user.Email, principal.Email)
	require.Equal(t, h.user.Roles, principal.Roles)
	require.Empty(t, principal.Consent)
	require.False(t, principal.IssuedAt.IsZero())
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Login(context.Background(), h.user.Email, "wrong")
	oerr := requireOAuthError(t, err, "invalid_grant", http.StatusBadRequest)
	require.Equal(t, "Wrong email or password.", oerr.Description)
}

func TestLoginUnknownEmail(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Login(context.Background(), "nobody@bytesyncer.dev", testUserPassword)
	oerr := requireOAuthError(t, err, "invalid_grant", http.StatusBadRequest)
	require.Equal(t, "Wrong email or password.", oerr.Description)
}

func TestRegisterSuccess(t *testing.T) {
	h := newHarness(t)

	principal, err := h.svc.Register(context.Background(), "Bob@ByteSyncer.dev", "hunter2hunter2", "Bob", "Stone")
	require.NoError(t, err)
	require.Equal(t, "bob@bytesyncer.dev", principal.Email)
	require.Equal(t, []string{domain.RoleUser}, principal.Roles)

	stored, err := h.users.GetByEmail(context.Background(), "bob@bytesyncer.dev")
	require.NoError(t, err)
	require.Equal(t, "Bob", stored.GivenName)
	require.Equal(t, "Stone", stored.FamilyName)
	require.NotEqual(t, "hunter2hunter2", stored.PasswordHash)

	// The new account can immediately sign in.
	_, err = h.svc.Login(context.Background(), "bob@bytesyncer.dev", "hunter2hunter2")
	require.NoError(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), h.user.Email, "another-password", "", "")
	oerr := requireOAuthError(t, err, "invalid_request", http.StatusBadRequest)
	require.Equal(t, "Email already registered.", oerr.Description)
}

func TestRegisterRequiresEmailAndPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), "  ", "pw", "", "")
	requireOAuthError(t, err, "invalid_request", http.StatusBadRequest)

	_, err = h.svc.Register(context.Background(), "c@bytesyncer.dev", "   ", "", "")
	requireOAuthError(t, err, "invalid_request", http.StatusBadRequest)
}
