package auth

import (
	"fmt"
	"strings"
)

// Role is an admin API role
type Role string

const (
	// RoleAdmin may use every admin endpoint
	RoleAdmin Role = "admin"

	// RoleViewer may read tracking records
	RoleViewer Role = "viewer"
)

func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is known
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks whether r satisfies required. Admin satisfies every role.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}

// ParseRoles parses a comma-separated role list
func ParseRoles(s string) ([]Role, error) {
	var roles []Role
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		r := Role(part)
		if !r.IsValid() {
			return nil, fmt.Errorf("invalid role %q", part)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Permits reports whether any of granted satisfies any of required. An empty
// required list permits everyone.
func Permits(granted []string, required ...Role) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, g := range granted {
			if Role(g).HasPermission(want) {
				return true
			}
		}
	}
	return false
}
