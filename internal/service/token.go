package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/bytesyncer/identity/internal/domain"
	"github.com/bytesyncer/identity/internal/jwt"
	pw "github.com/bytesyncer/identity/internal/password"
)

// TokenRequest carries the parsed token endpoint form.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse matches OAuth token responses.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// Exchange dispatches the token request to the matching grant handler.
func (s *AuthService) Exchange(ctx context.Context, req TokenRequest, issuer string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Exchange")
	defer span.End()

	switch req.GrantType {
	case domain.GrantTypeAuthorizationCode:
		return s.authorizationCodeGrant(ctx, req, issuer)
	case domain.GrantTypeRefreshToken:
		return s.refreshTokenGrant(ctx, req, issuer)
	default:
		return nil, newOAuthError("unsupported_grant_type", "The specified grant type is not supported.", http.StatusBadRequest)
	}
}

func (s *AuthService) authorizationCodeGrant(ctx context.Context, req TokenRequest, issuer string) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrantType(domain.GrantTypeAuthorizationCode) {
		return nil, newOAuthError("unauthorized_client", "The client is not allowed to use the authorization code grant.", http.StatusForbidden)
	}
	if req.Code == "" {
		return nil, newOAuthError("invalid_grant", "Authorization code missing.", http.StatusForbidden)
	}

	// Redemption is atomic in the store; a second exchange of the same
	// code never reaches this point with a row.
	code, err := s.codes.Redeem(ctx, req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, newOAuthError("invalid_grant", "The authorization code is invalid or has already been redeemed.", http.StatusForbidden)
		}
		return nil, fmt.Errorf("redeem authorization code: %w", err)
	}
	if code.Expired(time.Now()) {
		return nil, newOAuthError("invalid_grant", "The authorization code has expired.", http.StatusForbidden)
	}
	if code.ClientID != client.ClientID {
		return nil, newOAuthError("invalid_grant", "The authorization code was issued to another client.", http.StatusForbidden)
	}
	if code.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		return nil, newOAuthError("invalid_grant", "Mismatched redirect_uri.", http.StatusForbidden)
	}
	if err := verifyPKCE(code, req.CodeVerifier); err != nil {
		return nil, err
	}

	// Roles are re-resolved here, never trusted from code issuance time.
	user, err := s.users.GetByID(ctx, code.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, newOAuthError("invalid_grant", "Cannot find user from the token.", http.StatusForbidden)
		}
		return nil, newOAuthError("server_error", "An error occurred while retrieving the user profile.", http.StatusForbidden)
	}

	resp, err := s.issueTokens(ctx, user, client, code.Scopes, code.Resources, code.Nonce, issuer)
	if err == nil {
		s.audit("authorization_code.redeemed", "user_id", user.ID, "client_id", client.ClientID)
	}
	return resp, err
}

func (s *AuthService) refreshTokenGrant(ctx context.Context, req TokenRequest, issuer string) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrantType(domain.GrantTypeRefreshToken) {
		return nil, newOAuthError("unauthorized_client", "The client is not allowed to use the refresh token grant.", http.StatusForbidden)
	}
	if req.RefreshToken == "" {
		return nil, newOAuthError("invalid_grant", "Refresh token missing.", http.StatusForbidden)
	}

	stored, err := s.tokens.GetByToken(ctx, req.RefreshToken)
	if err != nil || stored.Revoked || time.Now().After(stored.ExpiresAt) {
		return nil, newOAuthError("invalid_grant", "The refresh token is invalid or has expired.", http.StatusForbidden)
	}
	if stored.ClientID != client.ClientID {
		return nil, newOAuthError("invalid_grant", "The refresh token was issued to another client.", http.StatusForbidden)
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, newOAuthError("invalid_grant", "Cannot find user from the token.", http.StatusForbidden)
		}
		return nil, newOAuthError("server_error", "An error occurred while retrieving the user profile.", http.StatusForbidden)
	}

	next := randomString(s.cfg.RefreshTokenBytes)
	expires := time.Now().Add(s.cfg.RefreshTokenTTL)
	if err := s.tokens.Rotate(ctx, stored.ID, next, expires); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	scope := strings.Join(stored.Scopes, " ")
	resources, err := s.scopes.ListResourcesForScopes(ctx, stored.Scopes)
	if err != nil {
		return nil, fmt.Errorf("resolve scope resources: %w", err)
	}

	access, err := s.jwt.GenerateAccessToken(ctx, user, scope, resources, issuer)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	s.audit("refresh_token.rotated", "user_id", user.ID, "client_id", client.ClientID)
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: next,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:        scope,
	}, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user domain.User, client domain.Client, scopes, resources []string, nonce, issuer string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.issueTokens")
	defer span.End()

	scope := strings.Join(scopes, " ")
	access, err := s.jwt.GenerateAccessToken(ctx, user, scope, resources, issuer)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	var idToken string
	for _, granted := range scopes {
		if granted == domain.ScopeOpenID {
			idToken, err = s.jwt.GenerateIDToken(ctx, user, client.ClientID, nonce, issuer)
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("generate id token: %w", err)
			}
			break
		}
	}

	refresh := domain.RefreshToken{
		ID:        s.snowflake.Generate().Int64(),
		ClientID:  client.ClientID,
		UserID:    user.ID,
		Token:     randomString(s.cfg.RefreshTokenBytes),
		Scopes:    scopes,
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
		CreatedAt: time.Now(),
	}
	if _, err := s.tokens.Create(ctx, refresh); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		IDToken:      idToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		Scope:        scope,
	}, nil
}

func (s *AuthService) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	client, err := s.clients.GetByClientID(ctx, strings.TrimSpace(clientID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Client{}, newOAuthError("invalid_client", "Details concerning the calling client application cannot be found.", http.StatusForbidden)
		}
		return domain.Client{}, newOAuthError("server_error", "An error occurred while loading the client application.", http.StatusForbidden)
	}

	valid, err := pw.Verify(clientSecret, client.SecretHash)
	if err != nil || !valid {
		return domain.Client{}, newOAuthError("invalid_client", "Invalid client credentials.", http.StatusForbidden)
	}
	return client, nil
}

func verifyPKCE(code domain.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return newOAuthError("invalid_grant", "The code_verifier is required.", http.StatusForbidden)
	}

	var derived string
	switch code.CodeChallengeMethod {
	case "", "plain":
		derived = verifier
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	default:
		return newOAuthError("invalid_grant", "Unsupported code_challenge_method.", http.StatusForbidden)
	}

	if subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) != 1 {
		return newOAuthError("invalid_grant", "The code_verifier does not match the code_challenge.", http.StatusForbidden)
	}
	return nil
}

// Introspection is the RFC 7662 response document.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Introspect reports token state for resource servers. Access tokens are
// validated as JWTs; anything else is looked up in the refresh token store.
func (s *AuthService) Introspect(ctx context.Context, token, issuer string) (*Introspection, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Introspect")
	defer span.End()

	if token == "" {
		return &Introspection{Active: false}, nil
	}

	if std, custom, err := s.jwt.ValidateAccessToken(ctx, token, issuer); err == nil {
		resp := &Introspection{
			Active:    true,
			Scope:     custom.Scope,
			Subject:   std.Subject,
			TokenType: "Bearer",
		}
		if std.Expiry != nil {
			resp.ExpiresAt = std.Expiry.Time().Unix()
		}
		if std.IssuedAt != nil {
			resp.IssuedAt = std.IssuedAt.Time().Unix()
		}
		return resp, nil
	}

	stored, err := s.tokens.GetByToken(ctx, token)
	if err != nil || stored.Revoked || time.Now().After(stored.ExpiresAt) {
		return &Introspection{Active: false}, nil
	}

	return &Introspection{
		Active:    true,
		Scope:     strings.Join(stored.Scopes, " "),
		ClientID:  stored.ClientID,
		Subject:   fmt.Sprintf("%d", stored.UserID),
		TokenType: "refresh_token",
		ExpiresAt: stored.ExpiresAt.Unix(),
		IssuedAt:  stored.CreatedAt.Unix(),
	}, nil
}

// Revoke invalidates a refresh token. Unknown tokens are a no-op per
// RFC 7009.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Revoke")
	defer span.End()

	if token == "" {
		return nil
	}

	stored, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if stored.Revoked {
		return nil
	}
	if err := s.tokens.Revoke(ctx, stored.ID); err != nil {
		return err
	}
	s.audit("refresh_token.revoked", "user_id", stored.UserID, "client_id", stored.ClientID)
	return nil
}

// RevokeUserTokens invalidates every active refresh token of the subject.
// Used by logout.
func (s *AuthService) RevokeUserTokens(ctx context.Context, userID int64) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	s.audit("refresh_token.revoked_all", "user_id", userID)
	return nil
}

// ValidateToken proxies to the JWT generator to validate access tokens.
func (s *AuthService) ValidateToken(ctx context.Context, token, issuer string) (*gojwt.Claims, *jwt.AccessTokenClaims, error) {
	return s.jwt.ValidateAccessToken(ctx, token, issuer)
}

// JWKS returns the published key set.
func (s *AuthService) JWKS(ctx context.Context) (gojose.JSONWebKeySet, error) {
	return s.keys.JWKS(ctx)
}
