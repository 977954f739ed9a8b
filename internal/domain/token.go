package domain

import "time"

// AuthorizationCode models single-use codes bound to a client and user.
type AuthorizationCode struct {
	ID                  int64
	ClientID            string
	UserID              int64
	Code                string
	RedirectURI         string
	Scopes              []string
	Resources           []string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	ExpiresAt           time.Time
	Redeemed            bool
	RedeemedAt          *time.Time
	CreatedAt           time.Time
}

// Expired reports whether the code is past its lifetime.
func (c AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RefreshToken persists the opaque refresh credential for a grant.
type RefreshToken struct {
	ID        int64
	ClientID  string
	UserID    int64
	Token     string
	Scopes    []string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// SigningKey stores the symmetric JWT signing material.
type SigningKey struct {
	ID        int64
	KID       string
	Secret    []byte
	Algorithm string
	IsActive  bool
	CreatedAt time.Time
	RotatedAt *time.Time
}
