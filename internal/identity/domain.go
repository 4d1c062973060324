package identity

import (
	"strings"

	"golang.org/x/text/cases"
)

// Role is the closed set of marketplace roles.
type Role string

const (
	RoleDonor     Role = "donor"
	RoleRecipient Role = "recipient"
	RoleAdmin     Role = "admin"
)

// DefaultProfilePicture is assigned when an identity has no avatar.
const DefaultProfilePicture = "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150&h=150&fit=crop&crop=face"

// Roles lists every recognized role.
func Roles() []Role {
	return []Role{RoleDonor, RoleRecipient, RoleAdmin}
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleRecipient, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable reports whether the role may be chosen at signup.
func (r Role) SelfAssignable() bool {
	return r == RoleDonor || r == RoleRecipient
}

func (r Role) String() string { return string(r) }

// ParseRole normalizes raw into a Role. Unknown values are kept verbatim so
// callers can detect them with Valid instead of losing the original data.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Identity is the authenticated user record held for a session.
type Identity struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	Organization   string `json:"organization,omitempty"`
	Location       string `json:"location,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	JoinDate       string `json:"joinDate,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Bio            string `json:"bio,omitempty"`
}

// Clone returns a copy safe to hand out of a lock.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// WithDefaults fills in the placeholder avatar when none is set.
func (i *Identity) WithDefaults() *Identity {
	c := i.Clone()
	if c != nil && strings.TrimSpace(c.ProfilePicture) == "" {
		c.ProfilePicture = DefaultProfilePicture
	}
	return c
}

// ProfilePatch carries a partial profile update. Nil fields are left untouched.
// Role and ID cannot be patched.
type ProfilePatch struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Organization   *string `json:"organization,omitempty"`
	Location       *string `json:"location,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Bio            *string `json:"bio,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Organization == nil && p.Location == nil &&
		p.ProfilePicture == nil && p.Phone == nil && p.Bio == nil
}

// Normalize trims every present field and folds the email.
func (p ProfilePatch) Normalize() ProfilePatch {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	p.Name = trim(p.Name)
	if p.Email != nil {
		e := NormalizeEmail(*p.Email)
		p.Email = &e
	}
	p.Organization = trim(p.Organization)
	p.Location = trim(p.Location)
	p.ProfilePicture = trim(p.ProfilePicture)
	p.Phone = trim(p.Phone)
	p.Bio = trim(p.Bio)
	return p
}

// Apply merges the patch into a copy of i, last write wins per field.
func (p ProfilePatch) Apply(i *Identity) *Identity {
	out := i.Clone()
	if out == nil {
		return nil
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.Name, p.Name)
	set(&out.Email, p.Email)
	set(&out.Organization, p.Organization)
	set(&out.Location, p.Location)
	set(&out.ProfilePicture, p.ProfilePicture)
	set(&out.Phone, p.Phone)
	set(&out.Bio, p.Bio)
	return out
}

// NormalizeEmail trims and case-folds an address for directory lookups.
func NormalizeEmail(email string) string {
	// Casers carry state and are not shared between goroutines.
	return cases.Fold().String(strings.TrimSpace(email))
}
