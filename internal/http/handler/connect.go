package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bytesyncer/identity/internal/http/middleware"
	"github.com/bytesyncer/identity/internal/service"
)

type authorizeForm struct {
	ClientID            string `form:"client_id"`
	RedirectURI         string `form:"redirect_uri"`
	ResponseType        string `form:"response_type"`
	Scope               string `form:"scope"`
	State               string `form:"state"`
	Nonce               string `form:"nonce"`
	Prompt              string `form:"prompt"`
	MaxAge              *int64 `form:"max_age"`
	CodeChallenge       string `form:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method"`
}

// Authorize handles GET/POST /connect/authorize.
func (h *AuthHandler) Authorize(c *gin.Context) {
	var form authorizeForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid authorize request."})
		return
	}

	principal, _, err := h.Sessions.Current(c)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	result, err := h.Auth.Authorize(c.Request.Context(), service.AuthorizeRequest{
		ClientID:            form.ClientID,
		RedirectURI:         form.RedirectURI,
		ResponseType:        form.ResponseType,
		Scope:               form.Scope,
		State:               form.State,
		Nonce:               form.Nonce,
		Prompt:              form.Prompt,
		MaxAge:              form.MaxAge,
		CodeChallenge:       form.CodeChallenge,
		CodeChallengeMethod: form.CodeChallengeMethod,
	}, principal)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	switch result.Action {
	case service.AuthorizeChallengeLogin:
		if result.ClearSession {
			_ = h.Sessions.Clear(c)
		}
		c.Redirect(http.StatusFound, h.loginRedirectURL(c))
	case service.AuthorizeChallengeConsent:
		c.Redirect(http.StatusFound, h.consentRedirectURL(c))
	case service.AuthorizeIssueCode:
		h.redirectAuthorizeSuccess(c, result)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Unhandled authorize outcome."})
	}
}

func (h *AuthHandler) redirectAuthorizeSuccess(c *gin.Context, result *service.AuthorizeResult) {
	redirect, err := url.Parse(result.RedirectURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "redirect_uri must be absolute."})
		return
	}
	q := redirect.Query()
	q.Set("code", result.Code)
	if result.State != "" {
		q.Set("state", result.State)
	}
	redirect.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, redirect.String())
}

// Token handles POST /connect/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" binding:"required"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
		Code         string `form:"code"`
		RedirectURI  string `form:"redirect_uri"`
		CodeVerifier string `form:"code_verifier"`
		RefreshToken string `form:"refresh_token"`
		Scope        string `form:"scope"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid token request."})
		return
	}

	resp, err := h.Auth.Exchange(c.Request.Context(), service.TokenRequest{
		GrantType:    strings.ToLower(req.GrantType),
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
		RefreshToken: req.RefreshToken,
		Scope:        req.Scope,
	}, issuer(c.Request))
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UserInfo handles GET/POST /connect/userinfo behind bearer validation.
func (h *AuthHandler) UserInfo(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok || claims.Email == "" {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}

	info, err := h.Auth.UserInfo(c.Request.Context(), claims.Email, strings.Fields(claims.Scope))
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// Logout handles POST /connect/logout: revokes the subject's refresh
// tokens, tears down the session and sends the browser to the root.
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, _, err := h.Sessions.Current(c)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}
	if principal != nil {
		if err := h.Auth.RevokeUserTokens(c.Request.Context(), principal.Subject); err != nil {
			h.respondOAuthError(c, err)
			return
		}
	}
	if err := h.Sessions.Clear(c); err != nil {
		h.respondOAuthError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// Introspect handles POST /connect/introspect per RFC 7662.
func (h *AuthHandler) Introspect(c *gin.Context) {
	var req struct {
		Token string `form:"token" json:"token" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "token is required."})
		return
	}

	result, err := h.Auth.Introspect(c.Request.Context(), strings.TrimSpace(req.Token), issuer(c.Request))
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Revoke handles POST /connect/revoke per RFC 7009.
func (h *AuthHandler) Revoke(c *gin.Context) {
	var req struct {
		Token string `form:"token" json:"token" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "token is required."})
		return
	}

	if err := h.Auth.Revoke(c.Request.Context(), strings.TrimSpace(req.Token)); err != nil {
		h.respondOAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
