package domain

import "time"

// Client is a registered OAuth application.
type Client struct {
	ID                     int64
	ClientID               string
	SecretHash             string
	DisplayName            string
	ConsentType            string
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	GrantTypes             []string
	Scopes                 []string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// AllowsRedirectURI reports whether the uri is registered for the client.
func (c Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AllowsGrantType reports whether the client may use the grant.
func (c Client) AllowsGrantType(grant string) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

const (
	ConsentTypeExplicit = "explicit"
	ConsentTypeImplicit = "implicit"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeRoles         = "roles"
	ScopeOfflineAccess = "offline_access"
	ScopeAPI           = "resource_api"
)

// Scope maps a grantable scope name onto the resource audiences it unlocks.
type Scope struct {
	ID          int64
	Name        string
	DisplayName string
	Resources   []string
	CreatedAt   time.Time
}
