package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytesyncer/identity/internal/domain"
	pw "github.com/bytesyncer/identity/internal/password"
	"github.com/bytesyncer/identity/internal/session"
)

// Login verifies the credential pair and builds the session principal.
// The consent claim starts empty; the consent page fills it later.
func (s *AuthService) Login(ctx context.Context, email, password string) (session.Principal, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	normalized := normalizeIdentifier(email)
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
		}
		return session.Principal{}, newOAuthError("invalid_grant", "Wrong email or password.", http.StatusBadRequest)
	}

	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		return session.Principal{}, newOAuthError("invalid_grant", "Wrong email or password.", http.StatusBadRequest)
	}

	s.audit("session.login.success", "user_id", user.ID)
	return session.Principal{
		Subject:    user.ID,
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		Roles:      user.Roles,
		IssuedAt:   time.Now().UTC(),
	}, nil
}

// Register creates a user with the default role and returns its session
// principal.
func (s *AuthService) Register(ctx context.Context, email, password, givenName, familyName string) (session.Principal, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	normalized := normalizeIdentifier(email)
	if normalized == "" {
		return session.Principal{}, newOAuthError("invalid_request", "Email is required.", http.StatusBadRequest)
	}
	if strings.TrimSpace(password) == "" {
		return session.Principal{}, newOAuthError("invalid_request", "Password is required.", http.StatusBadRequest)
	}

	hashed, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return session.Principal{}, fmt.Errorf("hash password: %w", err)
	}

	model := domain.User{
		ID:           s.snowflake.Generate().Int64(),
		Email:        normalized,
		PasswordHash: hashed,
		GivenName:    strings.TrimSpace(givenName),
		FamilyName:   strings.TrimSpace(familyName),
		Roles:        []string{domain.RoleUser},
		Status:       "ACTIVE",
	}

	created, err := s.users.Create(ctx, model)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return session.Principal{}, newOAuthError("invalid_request", "Email already registered.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return session.Principal{}, fmt.Errorf("create user: %w", err)
	}

	s.audit("session.register.success", "user_id", created.ID)
	return session.Principal{
		Subject:    created.ID,
		Email:      created.Email,
		GivenName:  created.GivenName,
		FamilyName: created.FamilyName,
		Roles:      created.Roles,
		IssuedAt:   time.Now().UTC(),
	}, nil
}

func normalizeIdentifier(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
