package session

import "time"

// Consent claim values recorded on the principal by the consent page.
const (
	ConsentGrant = "Grant"
	ConsentDeny  = "Deny"
)

// Principal is the authenticated identity carried by a browser session.
// The consent claim records the user's last decision for the authorize
// endpoint; an empty value means the user has not been asked yet.
type Principal struct {
	Subject    int64     `json:"sub"`
	Email      string    `json:"email"`
	GivenName  string    `json:"given_name,omitempty"`
	FamilyName string    `json:"family_name,omitempty"`
	Roles      []string  `json:"roles,omitempty"`
	Consent    string    `json:"consent,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Age returns how long ago the principal authenticated.
func (p Principal) Age(now time.Time) time.Duration {
	return now.Sub(p.IssuedAt)
}

// HasGrantedConsent reports whether the consent claim equals Grant.
func (p Principal) HasGrantedConsent() bool {
	return p.Consent == ConsentGrant
}
