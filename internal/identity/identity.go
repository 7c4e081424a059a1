// Package identity defines the caller identity supplied by an external
// authentication collaborator. The coordination core never authenticates;
// it only authorizes using the role carried here.
package identity

import (
	"fmt"
	"strings"

	"github.com/partvault/partvault/internal/errors"
)

// Role is the authorization level of an identity.
type Role string

const (
	// RoleUser is the default role: may check files out and in, edit metadata,
	// advance revisions, and manage their own subscriptions.
	RoleUser Role = "user"

	// RoleAdmin may additionally force-release locks held by other users.
	RoleAdmin Role = "admin"

	// RoleSupervisor has the same privileges as admin.
	RoleSupervisor Role = "supervisor"
)

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSupervisor:
		return RoleSupervisor, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q (valid: user, admin, supervisor)", errors.ErrInvalidInput, s)
	}
}

// Identity identifies the acting user on every call into the core.
type Identity struct {
	Username string
	Role     Role
}

// New creates an Identity, validating both fields.
func New(username string, role Role) (Identity, error) {
	id := Identity{Username: strings.TrimSpace(username), Role: role}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate reports whether the identity is well-formed.
func (i Identity) Validate() error {
	if i.Username == "" {
		return fmt.Errorf("%w: username is required", errors.ErrInvalidInput)
	}
	switch i.Role {
	case RoleUser, RoleAdmin, RoleSupervisor:
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", errors.ErrInvalidInput, i.Role)
	}
}

// CanForceRelease reports whether the identity may release locks held by
// other users. Force release is the administrative answer to abandoned
// locks; there is no automatic expiry.
func (i Identity) CanForceRelease() bool {
	return i.Role == RoleAdmin || i.Role == RoleSupervisor
}

// String renders the identity as "username (role)".
func (i Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.Username, i.Role)
}
