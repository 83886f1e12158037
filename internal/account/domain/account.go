package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Method identifies a way an account can authenticate.
type Method string

const (
	MethodCredentials Method = "credentials"
	MethodGoogle      Method = "google"
	MethodGitHub      Method = "github"
	MethodFacebook    Method = "facebook"
	MethodApple       Method = "apple"
	MethodLinkedIn    Method = "linkedin"
)

// Providers lists the federated identity providers an account may link.
var Providers = []Method{MethodGoogle, MethodGitHub, MethodFacebook, MethodApple, MethodLinkedIn}

// IsProvider reports whether m is a known federated provider.
func (m Method) IsProvider() bool {
	return slices.Contains(Providers, m)
}

// Role is the account's authorization role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is the core identity entity. Empty Name, Image and PasswordHash mean absent.
type Account struct {
	ID               string
	Email            string
	Name             string
	Image            string
	PasswordHash     string
	Methods          []Method
	EmailVerifiedAt  *time.Time
	TwoFactorEnabled bool
	Role             Role
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasMethod reports whether m is linked to the account.
func (a *Account) HasMethod(m Method) bool {
	return slices.Contains(a.Methods, m)
}

// Verified reports whether the account's email has been verified.
func (a *Account) Verified() bool {
	return a.EmailVerifiedAt != nil
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("id is required")
	}
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.Email != NormalizeEmail(a.Email) {
		return errors.New("email must be normalized")
	}
	switch a.Role {
	case RoleUser, RoleAdmin:
	case "":
		a.Role = RoleUser
	default:
		return errors.New("unknown role")
	}
	if a.PasswordHash == "" && a.HasMethod(MethodCredentials) {
		return errors.New("credentials method requires a password hash")
	}
	return nil
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Methods = slices.Clone(a.Methods)
	if a.EmailVerifiedAt != nil {
		t := *a.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	return &c
}

// NormalizeEmail trims and lowercases email.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// UnionMethods returns methods with m added if it is not already present.
func UnionMethods(methods []Method, m Method) []Method {
	if slices.Contains(methods, m) {
		return slices.Clone(methods)
	}
	return append(slices.Clone(methods), m)
}

// JoinMethods renders methods as a comma-separated list.
func JoinMethods(methods []Method) string {
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

// SplitMethods parses a comma-separated method list, dropping empties and duplicates.
func SplitMethods(s string) []Method {
	var out []Method
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(out, Method(p)) {
			continue
		}
		out = append(out, Method(p))
	}
	return out
}
