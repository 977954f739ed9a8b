package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bytesyncer/identity/internal/config"
	"github.com/bytesyncer/identity/internal/domain"
	"github.com/bytesyncer/identity/internal/password"
	"github.com/bytesyncer/identity/internal/repository"
)

const insertRoleSQL = `INSERT INTO roles (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`

// Seeder owns the startup data: roles, the API scope, the first-party
// clients and the admin account.
type Seeder struct {
	cfg     config.Config
	users   repository.UserRepository
	clients repository.ClientRepository
	scopes  repository.ScopeRepository
	pool    *pgxpool.Pool
	node    *snowflake.Node
	logger  *zap.Logger
}

// Register hooks seeding into the fx lifecycle.
func Register(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, clients repository.ClientRepository, scopes repository.ScopeRepository, pool *pgxpool.Pool, node *snowflake.Node, logger *zap.Logger) {
	s := &Seeder{cfg: cfg, users: users, clients: clients, scopes: scopes, pool: pool, node: node, logger: logger}
	lc.Append(fx.Hook{OnStart: s.Run})
}

// Run applies all seed data. It is idempotent.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.seedRoles(ctx); err != nil {
		return err
	}
	if err := s.seedScopes(ctx); err != nil {
		return err
	}
	if err := s.seedClients(ctx); err != nil {
		return err
	}
	return s.seedAdmin(ctx)
}

func (s *Seeder) seedRoles(ctx context.Context) error {
	for _, role := range []string{domain.RoleAdmin, domain.RoleUser} {
		if _, err := s.pool.Exec(ctx, insertRoleSQL, s.node.Generate().Int64(), role); err != nil {
			return fmt.Errorf("seed role %s: %w", role, err)
		}
	}
	return nil
}

func (s *Seeder) seedScopes(ctx context.Context) error {
	scope := domain.Scope{
		ID:          s.node.Generate().Int64(),
		Name:        domain.ScopeAPI,
		DisplayName: "API access",
		Resources:   []string{"resource_api_all"},
	}
	if err := s.scopes.Upsert(ctx, scope); err != nil {
		return fmt.Errorf("seed scope: %w", err)
	}
	return nil
}

func (s *Seeder) seedClients(ctx context.Context) error {
	secretHash, err := password.Hash(s.cfg.SeedClientSecret)
	if err != nil {
		return fmt.Errorf("seed hash client secret: %w", err)
	}

	clients := []domain.Client{
		{
			ID:                     s.node.Generate().Int64(),
			ClientID:               "web-client",
			SecretHash:             secretHash,
			DisplayName:            "Swagger UI client",
			ConsentType:            domain.ConsentTypeExplicit,
			RedirectURIs:           s.cfg.SeedRedirectURIs,
			PostLogoutRedirectURIs: []string{"/"},
			GrantTypes:             []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken},
			Scopes:                 []string{domain.ScopeOpenID, domain.ScopeProfile, domain.ScopeEmail, domain.ScopeRoles, domain.ScopeAPI},
		},
		{
			ID:                     s.node.Generate().Int64(),
			ClientID:               "oidc-debugger",
			SecretHash:             secretHash,
			DisplayName:            "OIDC debugger client",
			ConsentType:            domain.ConsentTypeExplicit,
			RedirectURIs:           []string{"https://oidcdebugger.com/debug"},
			PostLogoutRedirectURIs: []string{"/"},
			GrantTypes:             []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken},
			Scopes:                 []string{domain.ScopeOpenID, domain.ScopeProfile, domain.ScopeEmail, domain.ScopeRoles, domain.ScopeAPI},
		},
	}

	for _, client := range clients {
		if err := s.clients.Upsert(ctx, client); err != nil {
			return fmt.Errorf("seed client %s: %w", client.ClientID, err)
		}
	}
	return nil
}

func (s *Seeder) seedAdmin(ctx context.Context) error {
	email := strings.ToLower(strings.TrimSpace(s.cfg.AdminEmail))
	if email == "" || strings.TrimSpace(s.cfg.AdminPassword) == "" {
		return fmt.Errorf("admin bootstrap missing required config")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	hashed, err := password.Hash(s.cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := s.users.Create(ctx, domain.User{
		ID:           s.node.Generate().Int64(),
		Email:        email,
		PasswordHash: hashed,
		GivenName:    "Admin",
		Roles:        []string{domain.RoleAdmin},
		Status:       "ACTIVE",
	})
	if err != nil {
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("bootstrap admin user created",
			zap.String("email", created.Email),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
