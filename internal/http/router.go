package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bytesyncer/identity/internal/config"
	"github.com/bytesyncer/identity/internal/http/handler"
	httpmiddleware "github.com/bytesyncer/identity/internal/http/middleware"
	"github.com/bytesyncer/identity/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	connect := r.Group("/connect")
	{
		connect.GET("/authorize", authHandler.Authorize)
		connect.POST("/authorize", authHandler.Authorize)
		connect.POST("/token", authHandler.Token)
		connect.GET("/userinfo", authMiddleware.ValidateJWT, authHandler.UserInfo)
		connect.POST("/userinfo", authMiddleware.ValidateJWT, authHandler.UserInfo)
		connect.POST("/logout", authHandler.Logout)
		connect.POST("/introspect", authHandler.Introspect)
		connect.POST("/revoke", authHandler.Revoke)
	}

	auth := r.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/consent", authHandler.Consent)
	}

	r.GET("/.well-known/openid-configuration", authHandler.OpenIDConfig)
	r.GET("/.well-known/jwks.json", authHandler.JWKS)

	// The login and consent pages are served as static files; all auth
	// logic stays on the API routes.
	attachUIRoutes(r, filepath.Join("ui", "dist"))

	return r
}

func attachUIRoutes(r *gin.Engine, distDir string) {
	indexPath := filepath.Join(distDir, "index.html")

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPIPath(path) {
			c.Status(http.StatusNotFound)
			return
		}

		if filePath, ok := safeJoin(distDir, path); ok {
			if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
				c.File(filePath)
				return
			}
		}

		c.File(indexPath)
	})
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/auth") ||
		strings.HasPrefix(path, "/connect") ||
		strings.HasPrefix(path, "/.well-known")
}

func safeJoin(baseDir, requestPath string) (string, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return filepath.Join(baseDir, cleaned), true
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	return filepath.Join(baseDir, cleaned), true
}
