package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytesyncer/identity/internal/domain"
	"github.com/bytesyncer/identity/internal/session"
)

// Prompt values honored by the authorization endpoint.
const (
	PromptLogin   = "login"
	PromptConsent = "consent"
)

// AuthorizeRequest carries the normalized authorization request parameters.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	Prompt              string
	MaxAge              *int64
	CodeChallenge       string
	CodeChallengeMethod string
}

// Scopes splits the space-delimited scope parameter.
func (r AuthorizeRequest) Scopes() []string {
	return strings.Fields(r.Scope)
}

// HasPrompt reports whether the prompt parameter contains the value.
func (r AuthorizeRequest) HasPrompt(value string) bool {
	for _, p := range strings.Fields(r.Prompt) {
		if p == value {
			return true
		}
	}
	return false
}

// AuthorizeAction tells the handler how to complete the request.
type AuthorizeAction int

const (
	// AuthorizeIssueCode redirects back to the client with a fresh code.
	AuthorizeIssueCode AuthorizeAction = iota
	// AuthorizeChallengeLogin redirects to the interactive login page.
	AuthorizeChallengeLogin
	// AuthorizeChallengeConsent redirects to the interactive consent page.
	AuthorizeChallengeConsent
)

// AuthorizeResult is the outcome of an authorization request.
type AuthorizeResult struct {
	Action       AuthorizeAction
	Code         string
	RedirectURI  string
	State        string
	ClearSession bool
}

// Authorize runs the authorization endpoint decision chain for the given
// request and the session principal, which is nil when no valid session
// cookie accompanied the request.
func (s *AuthService) Authorize(ctx context.Context, req AuthorizeRequest, principal *session.Principal) (*AuthorizeResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Authorize")
	defer span.End()

	client, err := s.clients.GetByClientID(ctx, strings.TrimSpace(req.ClientID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, newOAuthError("invalid_client", "Details concerning the calling client application cannot be found.", http.StatusForbidden)
		}
		span.RecordError(err)
		return nil, newOAuthError("server_error", "An error occurred while loading the client application.", http.StatusForbidden)
	}

	if client.ConsentType != domain.ConsentTypeExplicit {
		return nil, newOAuthError("invalid_client", "Only clients with explicit consent type are allowed.", http.StatusForbidden)
	}

	if req.ResponseType != "code" {
		return nil, newOAuthError("unsupported_response_type", "Only the authorization code flow is supported.", http.StatusBadRequest)
	}

	if req.RedirectURI == "" || !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, newOAuthError("invalid_request", "The specified redirect_uri is not registered for the client.", http.StatusBadRequest)
	}

	// An aged-out session is treated exactly like a missing one.
	if principal != nil && req.MaxAge != nil && principal.Age(time.Now().UTC()) > time.Duration(*req.MaxAge)*time.Second {
		principal = nil
	}

	if principal == nil {
		return &AuthorizeResult{Action: AuthorizeChallengeLogin}, nil
	}

	if req.HasPrompt(PromptLogin) {
		return &AuthorizeResult{Action: AuthorizeChallengeLogin, ClearSession: true}, nil
	}

	if !principal.HasGrantedConsent() || req.HasPrompt(PromptConsent) {
		return &AuthorizeResult{Action: AuthorizeChallengeConsent}, nil
	}

	user, err := s.users.GetByEmail(ctx, principal.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Stale session for a deleted account; force re-authentication.
			return &AuthorizeResult{Action: AuthorizeChallengeLogin, ClearSession: true}, nil
		}
		span.RecordError(err)
		return nil, newOAuthError("server_error", "An error occurred while retrieving the user profile.", http.StatusForbidden)
	}

	scopes := req.Scopes()
	resources, err := s.scopes.ListResourcesForScopes(ctx, scopes)
	if err != nil {
		span.RecordError(err)
		return nil, newOAuthError("server_error", "An error occurred while resolving the requested scopes.", http.StatusForbidden)
	}

	code := domain.AuthorizationCode{
		ID:                  s.snowflake.Generate().Int64(),
		ClientID:            client.ClientID,
		UserID:              user.ID,
		Code:                randomString(32),
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		Resources:           resources,
		CodeChallenge:       strings.TrimSpace(req.CodeChallenge),
		CodeChallengeMethod: strings.TrimSpace(req.CodeChallengeMethod),
		Nonce:               strings.TrimSpace(req.Nonce),
		ExpiresAt:           time.Now().Add(s.cfg.AuthorizationCodeTTL),
		CreatedAt:           time.Now(),
	}

	if err := s.codes.Create(ctx, code); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist authorization code: %w", err)
	}

	s.audit("authorization_code.issued", "user_id", user.ID, "client_id", client.ClientID, "scope", req.Scope)
	return &AuthorizeResult{
		Action:      AuthorizeIssueCode,
		Code:        code.Code,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	}, nil
}
