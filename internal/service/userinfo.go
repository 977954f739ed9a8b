package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bytesyncer/identity/internal/domain"
)

// UserInfoResponse is the typed userinfo document. Optional claims are
// present only when the access token carries the gating scope.
type UserInfoResponse struct {
	Subject    string   `json:"sub"`
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Roles      []string `json:"roles,omitempty"`
}

// UserInfo discloses claims for the token subject. The subject is always
// returned; email requires scope "email", given/family name require
// "profile" and role names require "roles".
func (s *AuthService) UserInfo(ctx context.Context, email string, scopes []string) (*UserInfoResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.UserInfo")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, newOAuthError("invalid_token", "The access token is bound to an account that no longer exists.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return nil, newOAuthError("server_error", "An error occurred while retrieving the user profile.", http.StatusForbidden)
	}

	granted := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		granted[scope] = true
	}

	resp := &UserInfoResponse{Subject: strconv.FormatInt(user.ID, 10)}
	if granted[domain.ScopeEmail] {
		resp.Email = user.Email
	}
	if granted[domain.ScopeProfile] {
		resp.GivenName = user.GivenName
		resp.FamilyName = user.FamilyName
	}
	if granted[domain.ScopeRoles] {
		resp.Roles = user.Roles
	}
	return resp, nil
}
