package domain

import "time"

// User represents an end user of the file-storage platform.
type User struct {
	ID            int64
	Email         string
	EmailVerified bool
	PasswordHash  string
	GivenName     string
	FamilyName    string
	Roles         []string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FullName joins the given and family name for display claims.
func (u User) FullName() string {
	switch {
	case u.GivenName == "":
		return u.FamilyName
	case u.FamilyName == "":
		return u.GivenName
	default:
		return u.GivenName + " " + u.FamilyName
	}
}

// HasRole reports whether the user carries the named role.
func (u User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
