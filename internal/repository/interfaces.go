package repository

import (
	"context"
	"time"

	"github.com/bytesyncer/identity/internal/domain"
)

// UserRepository exposes persistence for platform users. Role names are
// loaded together with the user row so token issuance always sees the
// current assignments.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}

// ClientRepository exposes registered OAuth application metadata.
type ClientRepository interface {
	GetByClientID(ctx context.Context, clientID string) (domain.Client, error)
	Upsert(ctx context.Context, client domain.Client) error
}

// ScopeRepository resolves scope names to resource audiences.
type ScopeRepository interface {
	ListResourcesForScopes(ctx context.Context, scopes []string) ([]string, error)
	Upsert(ctx context.Context, scope domain.Scope) error
}

// CodeRepository manages authorization codes. Redeem must be atomic so a
// code can be exchanged at most once under concurrent requests.
type CodeRepository interface {
	Create(ctx context.Context, code domain.AuthorizationCode) error
	Redeem(ctx context.Context, code string) (domain.AuthorizationCode, error)
}

// TokenRepository handles refresh token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error)
	GetByToken(ctx context.Context, token string) (domain.RefreshToken, error)
	Rotate(ctx context.Context, tokenID int64, next string, expiresAt time.Time) error
	Revoke(ctx context.Context, tokenID int64) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}

// KeyRepository stores JWT signing keys.
type KeyRepository interface {
	GetActiveKey(ctx context.Context) (domain.SigningKey, error)
	CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error)
}
