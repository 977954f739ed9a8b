package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bytesyncer/identity/internal/config"
	"github.com/bytesyncer/identity/internal/domain"
	httptransport "github.com/bytesyncer/identity/internal/http"
	"github.com/bytesyncer/identity/internal/http/handler"
	httpmiddleware "github.com/bytesyncer/identity/internal/http/middleware"
	"github.com/bytesyncer/identity/internal/jwt"
	"github.com/bytesyncer/identity/internal/password"
	"github.com/bytesyncer/identity/internal/repository"
	"github.com/bytesyncer/identity/internal/service"
	"github.com/bytesyncer/identity/internal/session"
)

const (
	testClientSecret = "s3cret-value"
	testUserPassword = "correct horse battery staple"
	testRedirectURI  = "https://app.bytesyncer.dev/callback"
)

type env struct {
	router *gin.Engine
	users  *memUserRepo
	codes  *memCodeRepo
	tokens *memTokenRepo

	client domain.Client
	user   domain.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Config{
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		RefreshTokenBytes:    32,
		AuthorizationCodeTTL: 5 * time.Minute,
		SessionTTL:           12 * time.Hour,
		SessionCookieName:    "bytesyncer_session",
		LoginPath:            "/Index",
		ConsentPath:          "/Consent",
		ServiceName:          "bytesyncer-identity-test",
	}

	users := &memUserRepo{byID: map[int64]domain.User{}}
	clients := &memClientRepo{byClientID: map[string]domain.Client{}}
	scopes := &memScopeRepo{resources: map[string][]string{domain.ScopeAPI: {"resource_api_all"}}}
	codes := &memCodeRepo{byCode: map[string]domain.AuthorizationCode{}}
	tokens := &memTokenRepo{byID: map[int64]domain.RefreshToken{}}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	keys := jwt.NewKeyManager(&memKeyRepo{})
	generator := jwt.NewGenerator(keys, cfg.AccessTokenTTL)
	svc := service.NewAuthService(users, clients, scopes, codes, tokens, node, generator, keys, cfg, zap.NewNop())

	sessions := session.NewManager(session.NewRedisStore(rdb), cfg.SessionTTL, cfg.SessionCookieName, false)
	h := handler.NewAuthHandler(svc, service.NewDiscoveryService(), sessions, cfg)
	router := httptransport.NewRouter(cfg, h, &httpmiddleware.Auth{AuthService: svc}, nil)

	e := &env{router: router, users: users, codes: codes, tokens: tokens}

	secretHash, err := password.Hash(testClientSecret)
	require.NoError(t, err)
	e.client = domain.Client{
		ID:           1,
		ClientID:     "web-client",
		SecretHash:   secretHash,
		ConsentType:  domain.ConsentTypeExplicit,
		RedirectURIs: []string{testRedirectURI},
		GrantTypes:   []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken},
		Scopes:       []string{domain.ScopeOpenID, domain.ScopeProfile, domain.ScopeEmail, domain.ScopeRoles, domain.ScopeAPI},
	}
	clients.byClientID[e.client.ClientID] = e.client

	passwordHash, err := password.Hash(testUserPassword)
	require.NoError(t, err)
	e.user = domain.User{
		ID:           42,
		Email:        "alice@bytesyncer.dev",
		PasswordHash: passwordHash,
		GivenName:    "Alice",
		FamilyName:   "Nguyen",
		Roles:        []string{domain.RoleUser},
		Status:       "ACTIVE",
	}
	users.byID[e.user.ID] = e.user

	return e
}

// do replays the request against the router and returns the recorder.
func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func formRequest(path string, form map[string]string) *http.Request {
	values := url.Values{}
	for key, value := range form {
		values.Set(key, value)
	}
	req := httptest.NewRequest(http.MethodPost, "https://idp.bytesyncer.dev"+path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// login signs in the seeded user and returns the session cookie.
func (e *env) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(formRequest("/auth/login", map[string]string{
		"email":    e.user.Email,
		"password": testUserPassword,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "bytesyncer_session" {
			return cookie
		}
	}
	t.Fatal("session cookie missing")
	return nil
}

// grantConsent records a Grant decision on the session.
func (e *env) grantConsent(t *testing.T, cookie *http.Cookie) {
	t.Helper()
	req := formRequest("/auth/consent", map[string]string{"grant": session.ConsentGrant})
	req.AddCookie(cookie)
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
}

type memUserRepo struct {
	byID map[int64]domain.User
}

var _ repository.UserRepository = (*memUserRepo)(nil)

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	for _, user := range m.byID {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memUserRepo) GetByID(_ context.Context, userID int64) (domain.User, error) {
	user, ok := m.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (m *memUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.User{}, domain.ErrDuplicateEmail
		}
	}
	m.byID[user.ID] = user
	return user, nil
}

type memClientRepo struct {
	byClientID map[string]domain.Client
}

var _ repository.ClientRepository = (*memClientRepo)(nil)

func (m *memClientRepo) GetByClientID(_ context.Context, clientID string) (domain.Client, error) {
	client, ok := m.byClientID[clientID]
	if !ok {
		return domain.Client{}, domain.ErrNotFound
	}
	return client, nil
}

func (m *memClientRepo) Upsert(_ context.Context, client domain.Client) error {
	m.byClientID[client.ClientID] = client
	return nil
}

type memScopeRepo struct {
	resources map[string][]string
}

var _ repository.ScopeRepository = (*memScopeRepo)(nil)

func (m *memScopeRepo) ListResourcesForScopes(_ context.Context, scopes []string) ([]string, error) {
	var out []string
	for _, scope := range scopes {
		out = append(out, m.resources[scope]...)
	}
	return out, nil
}

func (m *memScopeRepo) Upsert(_ context.Context, scope domain.Scope) error {
	m.resources[scope.Name] = scope.Resources
	return nil
}

type memCodeRepo struct {
	byCode map[string]domain.AuthorizationCode
}

var _ repository.CodeRepository = (*memCodeRepo)(nil)

func (m *memCodeRepo) Create(_ context.Context, code domain.AuthorizationCode) error {
	m.byCode[code.Code] = code
	return nil
}

func (m *memCodeRepo) Redeem(_ context.Context, code string) (domain.AuthorizationCode, error) {
	stored, ok := m.byCode[code]
	if !ok || stored.Redeemed {
		return domain.AuthorizationCode{}, domain.ErrNotFound
	}
	now := time.Now()
	stored.Redeemed = true
	stored.RedeemedAt = &now
	m.byCode[code] = stored
	return stored, nil
}

type memTokenRepo struct {
	byID map[int64]domain.RefreshToken
}

var _ repository.TokenRepository = (*memTokenRepo)(nil)

func (m *memTokenRepo) Create(_ context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	m.byID[token.ID] = token
	return token, nil
}

func (m *memTokenRepo) GetByToken(_ context.Context, token string) (domain.RefreshToken, error) {
	for _, stored := range m.byID {
		if stored.Token == token {
			return stored, nil
		}
	}
	return domain.RefreshToken{}, domain.ErrNotFound
}

func (m *memTokenRepo) Rotate(_ context.Context, tokenID int64, next string, expiresAt time.Time) error {
	stored, ok := m.byID[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Token = next
	stored.ExpiresAt = expiresAt
	m.byID[tokenID] = stored
	return nil
}

func (m *memTokenRepo) Revoke(_ context.Context, tokenID int64) error {
	stored, ok := m.byID[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Revoked = true
	m.byID[tokenID] = stored
	return nil
}

func (m *memTokenRepo) RevokeAllForUser(_ context.Context, userID int64) error {
	for id, stored := range m.byID {
		if stored.UserID == userID {
			stored.Revoked = true
			m.byID[id] = stored
		}
	}
	return nil
}

type memKeyRepo struct {
	key domain.SigningKey
}

var _ repository.KeyRepository = (*memKeyRepo)(nil)

func (m *memKeyRepo) GetActiveKey(context.Context) (domain.SigningKey, error) {
	if m.key.ID == 0 {
		return domain.SigningKey{}, domain.ErrNotFound
	}
	return m.key, nil
}

func (m *memKeyRepo) CreateKey(_ context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	key.ID = 1
	m.key = key
	return key, nil
}
