package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bytesyncer/identity/internal/session"
)

type loginForm struct {
	Email     string `form:"email" json:"email" binding:"required"`
	Password  string `form:"password" json:"password" binding:"required"`
	ReturnURL string `form:"return_url" json:"return_url"`
}

// Login handles POST /auth/login from the login page.
func (h *AuthHandler) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email and password are required."})
		return
	}

	principal, err := h.Auth.Login(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	if _, err := h.Sessions.Issue(c, principal); err != nil {
		h.respondOAuthError(c, err)
		return
	}

	if target := safeReturnURL(form.ReturnURL); target != "" {
		c.Redirect(http.StatusFound, target)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerForm struct {
	Email      string `form:"email" json:"email" binding:"required"`
	Password   string `form:"password" json:"password" binding:"required"`
	GivenName  string `form:"given_name" json:"given_name"`
	FamilyName string `form:"family_name" json:"family_name"`
	ReturnURL  string `form:"return_url" json:"return_url"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Email and password are required."})
		return
	}

	principal, err := h.Auth.Register(c.Request.Context(), form.Email, form.Password, form.GivenName, form.FamilyName)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	if _, err := h.Sessions.Issue(c, principal); err != nil {
		h.respondOAuthError(c, err)
		return
	}

	if target := safeReturnURL(form.ReturnURL); target != "" {
		c.Redirect(http.StatusFound, target)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

type consentForm struct {
	Grant     string `form:"grant" json:"grant" binding:"required"`
	ReturnURL string `form:"return_url" json:"return_url"`
}

// Consent handles POST /auth/consent. It records the decision on the
// session principal and resumes the authorization flow via the return
// URL, where the authorize endpoint enforces the Grant value.
func (h *AuthHandler) Consent(c *gin.Context) {
	var form consentForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "grant is required."})
		return
	}

	decision := strings.TrimSpace(form.Grant)
	if decision != session.ConsentGrant && decision != session.ConsentDeny {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "grant must be Grant or Deny."})
		return
	}

	principal, sessionID, err := h.Sessions.Current(c)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}
	if principal == nil {
		c.Redirect(http.StatusFound, h.Config.LoginPath)
		return
	}

	principal.Consent = decision
	if err := h.Sessions.Update(c.Request.Context(), sessionID, *principal); err != nil {
		h.respondOAuthError(c, err)
		return
	}

	if target := safeReturnURL(form.ReturnURL); target != "" {
		c.Redirect(http.StatusFound, target)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "consent": decision})
}

// safeReturnURL accepts only local paths so the interactive pages cannot
// be used as an open redirector.
func safeReturnURL(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") {
		return ""
	}
	return trimmed
}
