package jwt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/bytesyncer/identity/internal/domain"
)

// Generator is responsible for signing and validating JWTs.
type Generator struct {
	keys      *KeyManager
	accessTTL time.Duration
}

// NewGenerator constructs a JWT generator.
func NewGenerator(manager *KeyManager, accessTTL time.Duration) *Generator {
	return &Generator{keys: manager, accessTTL: accessTTL}
}

// AccessTokenClaims represent the JWT payload for access tokens. Name and
// email always travel in the access token; roles follow the granted scope.
type AccessTokenClaims struct {
	Scope string   `json:"scope"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// IDTokenClaims represent the OpenID Connect identity token payload.
type IDTokenClaims struct {
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
}

// GenerateAccessToken produces a signed JWT whose audience lists the
// resource servers unlocked by the granted scopes.
func (g *Generator) GenerateAccessToken(ctx context.Context, user domain.User, scope string, resources []string, issuer string) (string, error) {
	signer, err := g.signer(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	stdClaims := gojwt.Claims{
		Subject:   strconv.FormatInt(user.ID, 10),
		Audience:  gojwt.Audience(resources),
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.accessTTL)),
		NotBefore: gojwt.NewNumericDate(now),
	}

	custom := AccessTokenClaims{
		Scope: scope,
		Email: user.Email,
		Name:  user.FullName(),
		Roles: user.Roles,
	}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize access token: %w", err)
	}
	return token, nil
}

// GenerateIDToken produces the identity token for openid requests. The
// audience is the requesting client.
func (g *Generator) GenerateIDToken(ctx context.Context, user domain.User, clientID, nonce, issuer string) (string, error) {
	signer, err := g.signer(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	stdClaims := gojwt.Claims{
		Subject:   strconv.FormatInt(user.ID, 10),
		Audience:  gojwt.Audience{clientID},
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.accessTTL)),
		NotBefore: gojwt.NewNumericDate(now),
	}

	custom := IDTokenClaims{
		Email:      user.Email,
		Name:       user.FullName(),
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		Nonce:      nonce,
	}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize id token: %w", err)
	}
	return token, nil
}

// ValidateAccessToken ensures the token is valid and returns its claims.
func (g *Generator) ValidateAccessToken(ctx context.Context, token, issuer string) (*gojwt.Claims, *AccessTokenClaims, error) {
	key, err := g.keys.ActiveKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load key: %w", err)
	}

	allowed := []gojose.SignatureAlgorithm{gojose.SignatureAlgorithm(key.Algorithm)}
	parsed, err := gojwt.ParseSigned(token, allowed)
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(key.Secret, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}

	if err := std.Validate(gojwt.Expected{Issuer: issuer, Time: time.Now().UTC()}); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}

	return &std, &custom, nil
}

func (g *Generator) signer(ctx context.Context) (gojose.Signer, error) {
	key, err := g.keys.EnsureSigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure signing key: %w", err)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}
	return signer, nil
}
