package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bytesyncer/identity/internal/config"
	"github.com/bytesyncer/identity/internal/domain"
	"github.com/bytesyncer/identity/internal/jwt"
	"github.com/bytesyncer/identity/internal/password"
	"github.com/bytesyncer/identity/internal/repository"
	"github.com/bytesyncer/identity/internal/service"
)

const (
	testIssuer       = "https://idp.bytesyncer.dev"
	testClientSecret = "s3cret-value"
	testUserPassword = "correct horse battery staple"
	testRedirectURI  = "https://app.bytesyncer.dev/callback"
)

type harness struct {
	svc     *service.AuthService
	users   *fakeUserRepo
	clients *fakeClientRepo
	scopes  *fakeScopeRepo
	codes   *fakeCodeRepo
	tokens  *fakeTokenRepo

	client domain.Client
	user   domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	users := &fakeUserRepo{byID: map[int64]domain.User{}}
	clients := &fakeClientRepo{byClientID: map[string]domain.Client{}}
	scopes := &fakeScopeRepo{resources: map[string][]string{}}
	codes := &fakeCodeRepo{byCode: map[string]domain.AuthorizationCode{}}
	tokens := &fakeTokenRepo{byID: map[int64]domain.RefreshToken{}}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	keys := jwt.NewKeyManager(&fakeKeyRepo{})
	cfg := config.Config{
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		RefreshTokenBytes:    32,
		AuthorizationCodeTTL: 5 * time.Minute,
	}
	generator := jwt.NewGenerator(keys, cfg.AccessTokenTTL)

	svc := service.NewAuthService(users, clients, scopes, codes, tokens, node, generator, keys, cfg, zap.NewNop())

	h := &harness{svc: svc, users: users, clients: clients, scopes: scopes, codes: codes, tokens: tokens}
	h.seed(t)
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()

	secretHash, err := password.Hash(testClientSecret)
	require.NoError(t, err)
	h.client = domain.Client{
		ID:           1,
		ClientID:     "web-client",
		SecretHash:   secretHash,
		DisplayName:  "Web client",
		ConsentType:  domain.ConsentTypeExplicit,
		RedirectURIs: []string{testRedirectURI},
		GrantTypes:   []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken},
		Scopes:       []string{domain.ScopeOpenID, domain.ScopeProfile, domain.ScopeEmail, domain.ScopeRoles, domain.ScopeAPI},
	}
	h.clients.byClientID[h.client.ClientID] = h.client

	passwordHash, err := password.Hash(testUserPassword)
	require.NoError(t, err)
	h.user = domain.User{
		ID:           42,
		Email:        "alice@bytesyncer.dev",
		PasswordHash: passwordHash,
		GivenName:    "Alice",
		FamilyName:   "Nguyen",
		Roles:        []string{domain.RoleUser},
		Status:       "ACTIVE",
	}
	h.users.byID[h.user.ID] = h.user

	h.scopes.resources[domain.ScopeAPI] = []string{"resource_api_all"}
}

func requireOAuthError(t *testing.T, err error, code string, status int) *service.OAuthError {
	t.Helper()
	var oerr *service.OAuthError
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, code, oerr.Code)
	require.Equal(t, status, oerr.Status)
	return oerr
}

type fakeUserRepo struct {
	byID map[int64]domain.User
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	for _, user := range f.byID {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByID(_ context.Context, userID int64) (domain.User, error) {
	user, ok := f.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	for _, existing := range f.byID {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.User{}, domain.ErrDuplicateEmail
		}
	}
	f.byID[user.ID] = user
	return user, nil
}

type fakeClientRepo struct {
	byClientID map[string]domain.Client
}

var _ repository.ClientRepository = (*fakeClientRepo)(nil)

func (f *fakeClientRepo) GetByClientID(_ context.Context, clientID string) (domain.Client, error) {
	client, ok := f.byClientID[clientID]
	if !ok {
		return domain.Client{}, domain.ErrNotFound
	}
	return client, nil
}

func (f *fakeClientRepo) Upsert(_ context.Context, client domain.Client) error {
	f.byClientID[client.ClientID] = client
	return nil
}

type fakeScopeRepo struct {
	resources map[string][]string
}

var _ repository.ScopeRepository = (*fakeScopeRepo)(nil)

func (f *fakeScopeRepo) ListResourcesForScopes(_ context.Context, scopes []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, scope := range scopes {
		for _, resource := range f.resources[scope] {
			if !seen[resource] {
				seen[resource] = true
				out = append(out, resource)
			}
		}
	}
	return out, nil
}

func (f *fakeScopeRepo) Upsert(_ context.Context, scope domain.Scope) error {
	f.resources[scope.Name] = scope.Resources
	return nil
}

type fakeCodeRepo struct {
	byCode map[string]domain.AuthorizationCode
}

var _ repository.CodeRepository = (*fakeCodeRepo)(nil)

func (f *fakeCodeRepo) Create(_ context.Context, code domain.AuthorizationCode) error {
	f.byCode[code.Code] = code
	return nil
}

func (f *fakeCodeRepo) Redeem(_ context.Context, code string) (domain.AuthorizationCode, error) {
	stored, ok := f.byCode[code]
	if !ok || stored.Redeemed {
		return domain.AuthorizationCode{}, domain.ErrNotFound
	}
	now := time.Now()
	stored.Redeemed = true
	stored.RedeemedAt = &now
	f.byCode[code] = stored
	return stored, nil
}

type fakeTokenRepo struct {
	byID map[int64]domain.RefreshToken
}

var _ repository.TokenRepository = (*fakeTokenRepo)(nil)

func (f *fakeTokenRepo) Create(_ context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	f.byID[token.ID] = token
	return token, nil
}

func (f *fakeTokenRepo) GetByToken(_ context.Context, token string) (domain.RefreshToken, error) {
	for _, stored := range f.byID {
		if stored.Token == token {
			return stored, nil
		}
	}
	return domain.RefreshToken{}, domain.ErrNotFound
}

func (f *fakeTokenRepo) Rotate(_ context.Context, tokenID int64, next string, expiresAt time.Time) error {
	stored, ok := f.byID[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Token = next
	stored.ExpiresAt = expiresAt
	f.byID[tokenID] = stored
	return nil
}

func (f *fakeTokenRepo) Revoke(_ context.Context, tokenID int64) error {
	stored, ok := f.byID[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Revoked = true
	f.byID[tokenID] = stored
	return nil
}

func (f *fakeTokenRepo) RevokeAllForUser(_ context.Context, userID int64) error {
	for id, stored := range f.byID {
		if stored.UserID == userID {
			stored.Revoked = true
			f.byID[id] = stored
		}
	}
	return nil
}

type fakeKeyRepo struct {
	key domain.SigningKey
}

var _ repository.KeyRepository = (*fakeKeyRepo)(nil)

func (f *fakeKeyRepo) GetActiveKey(context.Context) (domain.SigningKey, error) {
	if f.key.ID == 0 {
		return domain.SigningKey{}, domain.ErrNotFound
	}
	return f.key, nil
}

func (f *fakeKeyRepo) CreateKey(_ context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	key.ID = 1
	f.key = key
	return key, nil
}
