package domain

import (
	"slices"
	"time"
)

// Patch is a partial update to an account. Nil fields are left unchanged.
type Patch struct {
	Name             *string
	Image            *string
	PasswordHash     *string
	Methods          []Method
	EmailVerifiedAt  *time.Time
	TwoFactorEnabled *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Image == nil && p.PasswordHash == nil && p.Methods == nil &&
		p.EmailVerifiedAt == nil && p.TwoFactorEnabled == nil
}

// Apply writes the patch onto a and bumps UpdatedAt.
func (p Patch) Apply(a *Account, now time.Time) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Image != nil {
		a.Image = *p.Image
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.Methods != nil {
		a.Methods = slices.Clone(p.Methods)
	}
	if p.EmailVerifiedAt != nil {
		t := *p.EmailVerifiedAt
		a.EmailVerifiedAt = &t
	}
	if p.TwoFactorEnabled != nil {
		a.TwoFactorEnabled = *p.TwoFactorEnabled
	}
	a.UpdatedAt = now
}
