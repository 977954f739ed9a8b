package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OpenIDConfig returns the OpenID discovery document.
func (h *AuthHandler) OpenIDConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Discovery.OpenIDConfigurationResponse(schemeOnly(c.Request), hostOnly(c.Request)))
}

// JWKS exposes the signing key set.
func (h *AuthHandler) JWKS(c *gin.Context) {
	jwks, err := h.Auth.JWKS(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jwks)
}
