package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bytesyncer/identity/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository   = (*PostgresUserRepo)(nil)
	_ ClientRepository = (*PostgresClientRepo)(nil)
	_ ScopeRepository  = (*PostgresScopeRepo)(nil)
	_ CodeRepository   = (*PostgresCodeRepo)(nil)
	_ TokenRepository  = (*PostgresTokenRepo)(nil)
	_ KeyRepository    = (*PostgresKeyRepo)(nil)
)

const uniqueViolation = "23505"

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const selectUserSQL = `
SELECT u.id, u.email, u.email_verified, u.password_hash, u.given_name, u.family_name, u.status, u.created_at, u.updated_at,
       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id
`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserSQL+`WHERE lower(u.email) = lower($1) GROUP BY u.id`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserSQL+`WHERE u.id = $1 GROUP BY u.id`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO users (id, email, email_verified, password_hash, given_name, family_name, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`,
		user.ID,
		user.Email,
		user.EmailVerified,
		user.PasswordHash,
		user.GivenName,
		user.FamilyName,
		user.Status,
	)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	if len(user.Roles) > 0 {
		if _, err := tx.Exec(ctx, `
INSERT INTO user_roles (user_id, role_id)
SELECT $1, r.id FROM roles r WHERE r.name = ANY($2)
ON CONFLICT DO NOTHING`, user.ID, user.Roles); err != nil {
			return domain.User{}, fmt.Errorf("assign roles: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.User{}, fmt.Errorf("commit create user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.EmailVerified,
		&user.PasswordHash,
		&user.GivenName,
		&user.FamilyName,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Roles,
	); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// PostgresClientRepo implements ClientRepository.
type PostgresClientRepo struct {
	db *pgxpool.Pool
}

func NewPostgresClientRepo(pool *pgxpool.Pool) *PostgresClientRepo {
	return &PostgresClientRepo{db: pool}
}

func (r *PostgresClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.Client, error) {
	const query = `
SELECT id, client_id, secret_hash, display_name, consent_type, redirect_uris, post_logout_redirect_uris, grant_types, scopes, created_at, updated_at
FROM oauth_clients
WHERE client_id = $1
LIMIT 1`

	var client domain.Client
	if err := r.db.QueryRow(ctx, query, clientID).Scan(
		&client.ID,
		&client.ClientID,
		&client.SecretHash,
		&client.DisplayName,
		&client.ConsentType,
		&client.RedirectURIs,
		&client.PostLogoutRedirectURIs,
		&client.GrantTypes,
		&client.Scopes,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Client{}, domain.ErrNotFound
		}
		return domain.Client{}, fmt.Errorf("get oauth client: %w", err)
	}
	return client, nil
}

func (r *PostgresClientRepo) Upsert(ctx context.Context, client domain.Client) error {
	const query = `
INSERT INTO oauth_clients (id, client_id, secret_hash, display_name, consent_type, redirect_uris, post_logout_redirect_uris, grant_types, scopes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (client_id) DO UPDATE SET
    secret_hash = EXCLUDED.secret_hash,
    display_name = EXCLUDED.display_name,
    consent_type = EXCLUDED.consent_type,
    redirect_uris = EXCLUDED.redirect_uris,
    post_logout_redirect_uris = EXCLUDED.post_logout_redirect_uris,
    grant_types = EXCLUDED.grant_types,
    scopes = EXCLUDED.scopes,
    updated_at = now()`

	if _, err := r.db.Exec(ctx, query,
		client.ID,
		client.ClientID,
		client.SecretHash,
		client.DisplayName,
		client.ConsentType,
		client.RedirectURIs,
		client.PostLogoutRedirectURIs,
		client.GrantTypes,
		client.Scopes,
	); err != nil {
		return fmt.Errorf("upsert oauth client: %w", err)
	}
	return nil
}

// PostgresScopeRepo implements ScopeRepository.
type PostgresScopeRepo struct {
	db *pgxpool.Pool
}

func NewPostgresScopeRepo(pool *pgxpool.Pool) *PostgresScopeRepo {
	return &PostgresScopeRepo{db: pool}
}

func (r *PostgresScopeRepo) ListResourcesForScopes(ctx context.Context, scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
SELECT DISTINCT unnest(resources)
FROM oauth_scopes
WHERE name = ANY($1)
ORDER BY 1`, scopes)
	if err != nil {
		return nil, fmt.Errorf("list scope resources: %w", err)
	}
	defer rows.Close()

	var resources []string
	for rows.Next() {
		var resource string
		if err := rows.Scan(&resource); err != nil {
			return nil, fmt.Errorf("scan scope resource: %w", err)
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scope resources: %w", err)
	}
	return resources, nil
}

func (r *PostgresScopeRepo) Upsert(ctx context.Context, scope domain.Scope) error {
	const query = `
INSERT INTO oauth_scopes (id, name, display_name, resources)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    resources = EXCLUDED.resources`

	if _, err := r.db.Exec(ctx, query, scope.ID, scope.Name, scope.DisplayName, scope.Resources); err != nil {
		return fmt.Errorf("upsert scope: %w", err)
	}
	return nil
}

// PostgresCodeRepo implements CodeRepository.
type PostgresCodeRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCodeRepo(pool *pgxpool.Pool) *PostgresCodeRepo {
	return &PostgresCodeRepo{db: pool}
}

func (r *PostgresCodeRepo) Create(ctx context.Context, code domain.AuthorizationCode) error {
	const query = `
INSERT INTO authorization_codes (id, client_id, user_id, code, redirect_uri, scopes, resources, code_challenge, code_challenge_method, nonce, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := r.db.Exec(ctx, query,
		code.ID,
		code.ClientID,
		code.UserID,
		code.Code,
		code.RedirectURI,
		code.Scopes,
		code.Resources,
		code.CodeChallenge,
		code.CodeChallengeMethod,
		code.Nonce,
		code.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert authorization code: %w", err)
	}
	return nil
}

// Redeem flips the redeemed flag and returns the row in one statement, so
// concurrent exchanges of the same code see at most one winner.
func (r *PostgresCodeRepo) Redeem(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	const query = `
UPDATE authorization_codes
SET redeemed = TRUE, redeemed_at = now()
WHERE code = $1 AND redeemed = FALSE
RETURNING id, client_id, user_id, code, redirect_uri, scopes, resources, code_challenge, code_challenge_method, nonce, expires_at, redeemed, redeemed_at, created_at`

	var redeemed domain.AuthorizationCode
	if err := r.db.QueryRow(ctx, query, code).Scan(
		&redeemed.ID,
		&redeemed.ClientID,
		&redeemed.UserID,
		&redeemed.Code,
		&redeemed.RedirectURI,
		&redeemed.Scopes,
		&redeemed.Resources,
		&redeemed.CodeChallenge,
		&redeemed.CodeChallengeMethod,
		&redeemed.Nonce,
		&redeemed.ExpiresAt,
		&redeemed.Redeemed,
		&redeemed.RedeemedAt,
		&redeemed.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuthorizationCode{}, domain.ErrNotFound
		}
		return domain.AuthorizationCode{}, fmt.Errorf("redeem authorization code: %w", err)
	}
	return redeemed, nil
}

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

func (r *PostgresTokenRepo) Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	const query = `
INSERT INTO refresh_tokens (id, client_id, user_id, token, scopes, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

	if err := r.db.QueryRow(ctx, query,
		token.ID,
		token.ClientID,
		token.UserID,
		token.Token,
		token.Scopes,
		token.ExpiresAt,
	).Scan(&token.CreatedAt); err != nil {
		return domain.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	return token, nil
}

func (r *PostgresTokenRepo) GetByToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	const query = `
SELECT id, client_id, user_id, token, scopes, expires_at, revoked, created_at
FROM refresh_tokens
WHERE token = $1
LIMIT 1`

	var stored domain.RefreshToken
	if err := r.db.QueryRow(ctx, query, token).Scan(
		&stored.ID,
		&stored.ClientID,
		&stored.UserID,
		&stored.Token,
		&stored.Scopes,
		&stored.ExpiresAt,
		&stored.Revoked,
		&stored.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RefreshToken{}, domain.ErrNotFound
		}
		return domain.RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	return stored, nil
}

func (r *PostgresTokenRepo) Rotate(ctx context.Context, tokenID int64, next string, expiresAt time.Time) error {
	if _, err := r.db.Exec(ctx, `
UPDATE refresh_tokens SET token = $2, expires_at = $3 WHERE id = $1`, tokenID, next, expiresAt); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) Revoke(ctx context.Context, tokenID int64) error {
	if _, err := r.db.Exec(ctx, `
UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1`, tokenID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `
UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// PostgresKeyRepo implements KeyRepository.
type PostgresKeyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresKeyRepo(pool *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{db: pool}
}

func (r *PostgresKeyRepo) GetActiveKey(ctx context.Context) (domain.SigningKey, error) {
	const query = `
SELECT id, kid, secret, algorithm, is_active, created_at, rotated_at
FROM signing_keys
WHERE is_active = TRUE
ORDER BY created_at DESC
LIMIT 1`

	var key domain.SigningKey
	if err := r.db.QueryRow(ctx, query).Scan(
		&key.ID,
		&key.KID,
		&key.Secret,
		&key.Algorithm,
		&key.IsActive,
		&key.CreatedAt,
		&key.RotatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SigningKey{}, domain.ErrNotFound
		}
		return domain.SigningKey{}, fmt.Errorf("get signing key: %w", err)
	}
	return key, nil
}

func (r *PostgresKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	const query = `
INSERT INTO signing_keys (id, kid, secret, algorithm, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`

	if err := r.db.QueryRow(ctx, query, key.ID, key.KID, key.Secret, key.Algorithm, key.IsActive).Scan(&key.CreatedAt); err != nil {
		return domain.SigningKey{}, fmt.Errorf("insert signing key: %w", err)
	}
	return key, nil
}
