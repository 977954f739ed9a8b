package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bytesyncer/identity/internal/config"
	"github.com/bytesyncer/identity/internal/jwt"
	"github.com/bytesyncer/identity/internal/repository"
)

// OAuthError standardizes OAuth compliant errors.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, desc string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: desc, Status: status}
}

// AuthService encapsulates the authorization server flows.
type AuthService struct {
	users     repository.UserRepository
	clients   repository.ClientRepository
	scopes    repository.ScopeRepository
	codes     repository.CodeRepository
	tokens    repository.TokenRepository
	snowflake *snowflake.Node
	jwt       *jwt.Generator
	keys      *jwt.KeyManager
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, clients repository.ClientRepository, scopes repository.ScopeRepository, codes repository.CodeRepository, tokens repository.TokenRepository, node *snowflake.Node, generator *jwt.Generator, keys *jwt.KeyManager, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		clients:   clients,
		scopes:    scopes,
		codes:     codes,
		tokens:    tokens,
		snowflake: node,
		jwt:       generator,
		keys:      keys,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/bytesyncer/identity/internal/service"),
	}
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func randomString(n int) string {
	if n <= 0 {
		n = 64
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
