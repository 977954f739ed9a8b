package handler

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bytesyncer/identity/internal/config"
	"github.com/bytesyncer/identity/internal/service"
	"github.com/bytesyncer/identity/internal/session"
)

// AuthHandler orchestrates the authorization server endpoints.
type AuthHandler struct {
	Auth      *service.AuthService
	Discovery *service.DiscoveryService
	Sessions  *session.Manager
	Config    config.Config
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, discovery *service.DiscoveryService, sessions *session.Manager, cfg config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, Discovery: discovery, Sessions: sessions, Config: cfg}
}

func (h *AuthHandler) respondOAuthError(c *gin.Context, err error) {
	if oauthErr, ok := err.(*service.OAuthError); ok {
		if oauthErr.Code == "invalid_token" {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
}

// authorizeReturnURL rebuilds the original request path and parameters,
// dropping prompt so the flow cannot loop back into a challenge.
func authorizeReturnURL(c *gin.Context) string {
	_ = c.Request.ParseForm()
	params := url.Values{}
	for key, values := range c.Request.Form {
		if key == "prompt" {
			continue
		}
		params[key] = values
	}
	if len(params) == 0 {
		return c.Request.URL.Path
	}
	return c.Request.URL.Path + "?" + params.Encode()
}

func (h *AuthHandler) loginRedirectURL(c *gin.Context) string {
	q := url.Values{}
	q.Set("ReturnUrl", authorizeReturnURL(c))
	return h.Config.LoginPath + "?" + q.Encode()
}

func (h *AuthHandler) consentRedirectURL(c *gin.Context) string {
	q := url.Values{}
	q.Set("returnUrl", authorizeReturnURL(c))
	return h.Config.ConsentPath + "?" + q.Encode()
}

func issuer(r *http.Request) string {
	return schemeOnly(r) + "://" + hostOnly(r)
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}

func hostOnly(r *http.Request) string {
	host := r.Host
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}
