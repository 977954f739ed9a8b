package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesyncer/identity/internal/service"
)

func authorizeURL(extra map[string]string) string {
	q := url.Values{}
	q.Set("client_id", "web-client")
	q.Set("redirect_uri", testRedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "openid profile email roles resource_api")
	q.Set("state", "af0ifjsldkj")
	for key, value := range extra {
		q.Set(key, value)
	}
	return "https://idp.bytesyncer.dev/connect/authorize?" + q.Encode()
}

func TestAuthorizeAnonymousRedirectsToLogin(t *testing.T) {
	e := newEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL(map[string]string{"prompt": "login"}), nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/Index", location.Path)

	returnURL, err := url.Parse(location.Query().Get("ReturnUrl"))
	require.NoError(t, err)
	require.Equal(t, "/connect/authorize", returnURL.Path)
	require.Equal(t, "web-client", returnURL.Query().Get("client_id"))
	// The prompt parameter must not survive into the resumed request.
	require.Empty(t, returnURL.Query().Get("prompt"))
}

func TestAuthorizeAuthenticatedWithoutConsentRedirectsToConsent(t *testing.T) {
	e := newEnv(t)
	cookie := e.login(t)

	req := httptest.NewRequest(http.MethodGet, authorizeURL(nil), nil)
	req.AddCookie(cookie)
	rec := e.do(req)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/Consent", location.Path)
	require.NotEmpty(t, location.Query().Get("returnUrl"))
}

func TestAuthorizeGrantedConsentRedirectsWithCode(t *testing.T) {
	e := newEnv(t)
	cookie := e.login(t)
	e.grantConsent(t, cookie)

	req := httptest.NewRequest(http.MethodGet, authorizeURL(nil), nil)
	req.AddCookie(cookie)
	rec := e.do(req)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "app.bytesyncer.dev", location.Host)
	require.Equal(t, "/callback", location.Path)
	require.Equal(t, "af0ifjsldkj", location.Query().Get("state"))

	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	_, ok := e.codes.byCode[code]
	require.True(t, ok)
}

func TestAuthorizeUnknownClientFails(t *testing.T) {
	e := newEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, authorizeURL(map[string]string{"client_id": "ghost"}), nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_client", body["error"])
}

// obtainCode drives login, consent and authorize to get a fresh code.
func obtainCode(t *testing.T, e *env) (string, *http.Cookie) {
	t.Helper()
	cookie := e.login(t)
	e.grantConsent(t, cookie)

	req := httptest.NewRequest(http.MethodGet, authorizeURL(nil), nil)
	req.AddCookie(cookie)
	rec := e.do(req)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code, cookie
}

func TestTokenEndpointExchangesCode(t *testing.T) {
	e := newEnv(t)
	code, _ := obtainCode(t, e)

	rec := e.do(formRequest("/connect/token", map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "web-client",
		"client_secret": testClientSecret,
		"code":          code,
		"redirect_uri":  testRedirectURI,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp service.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.IDToken)

	// The minted access token must satisfy the userinfo endpoint.
	req := httptest.NewRequest(http.MethodGet, "https://idp.bytesyncer.dev/connect/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	rec = e.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var info service.UserInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "42", info.Subject)
	require.Equal(t, e.user.Email, info.Email)
	require.Equal(t, "Alice", info.GivenName)
	require.Equal(t, e.user.Roles, info.Roles)
}

func TestTokenEndpointRejectsReplayedCode(t *testing.T) {
	e := newEnv(t)
	code, _ := obtainCode(t, e)

	form := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "web-client",
		"client_secret": testClientSecret,
		"code":          code,
		"redirect_uri":  testRedirectURI,
	}

	rec := e.do(formRequest("/connect/token", form))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(formRequest("/connect/token", form))
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_grant", body["error"])
}

func TestTokenEndpointRequiresGrantType(t *testing.T) {
	e := newEnv(t)

	rec := e.do(formRequest("/connect/token", map[string]string{"client_id": "web-client"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenEndpointUnsupportedGrantType(t *testing.T) {
	e := newEnv(t)

	rec := e.do(formRequest("/connect/token", map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "web-client",
		"client_secret": testClientSecret,
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unsupported_grant_type", body["error"])
}

func TestUserInfoRejectsMissingToken(t *testing.T) {
	e := newEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "https://idp.bytesyncer.dev/connect/userinfo", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestIntrospectRequiresToken(t *testing.T) {
	e := newEnv(t)

	rec := e.do(formRequest("/connect/introspect", map[string]string{}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeEndpointKillsRefreshToken(t *testing.T) {
	e := newEnv(t)
	code, _ := obtainCode(t, e)

	rec := e.do(formRequest("/connect/token", map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "web-client",
		"client_secret": testClientSecret,
		"code":          code,
		"redirect_uri":  testRedirectURI,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp service.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = e.do(formRequest("/connect/revoke", map[string]string{"token": resp.RefreshToken}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(formRequest("/connect/introspect", map[string]string{"token": resp.RefreshToken}))
	require.Equal(t, http.StatusOK, rec.Code)

	var info service.Introspection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.False(t, info.Active)
}

func TestLogoutClearsSessionAndRevokesTokens(t *testing.T) {
	e := newEnv(t)
	code, cookie := obtainCode(t, e)

	rec := e.do(formRequest("/connect/token", map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "web-client",
		"client_secret": testClientSecret,
		"code":          code,
		"redirect_uri":  testRedirectURI,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	req := formRequest("/connect/logout", map[string]string{})
	req.AddCookie(cookie)
	rec = e.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	for _, stored := range e.tokens.byID {
		require.True(t, stored.Revoked)
	}

	// Session cookie gone: the authorize endpoint challenges login again.
	req = httptest.NewRequest(http.MethodGet, authorizeURL(nil), nil)
	req.AddCookie(cookie)
	rec = e.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/Index", location.Path)
}
