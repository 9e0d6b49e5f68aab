// ABOUTME: Principal, role enum, and the pure admission decision used by guards and services
// ABOUTME: Admit is nil-safe and deterministic; nil means anonymous

// Package access decides whether a principal satisfies a route or
// operation requirement. It has no I/O and no state.
package access

import (
	"fmt"
	"strings"
	"time"
)

// Role is the coarse-grained authorization level of a principal.
type Role string

// Roles. Any value outside this set is read as RoleUser.
const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleTrainer Role = "trainer"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleAdmin, RoleTrainer}

// Valid reports whether r is in the role enum.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleTrainer:
		return true
	}
	return false
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Principal is the authenticated identity plus profile attributes.
type Principal struct {
	ID           string
	Email        string
	Role         Role
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  time.Time
	LastLogoutAt time.Time
}

// IsAdmin returns true if the principal has the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Requirement is what a route or operation demands of the principal.
type Requirement int

// Requirements. The zero value is public.
const (
	RequirePublic Requirement = iota
	RequireAuthenticated
	RequireAdmin
)

func (r Requirement) String() string {
	switch r {
	case RequirePublic:
		return "public"
	case RequireAuthenticated:
		return "authenticated"
	case RequireAdmin:
		return "admin"
	}
	return fmt.Sprintf("requirement(%d)", int(r))
}

// DenyReason explains a denial.
type DenyReason int

// Deny reasons.
const (
	ReasonNone DenyReason = iota
	ReasonUnauthenticated
	ReasonInsufficientRole
)

func (d DenyReason) String() string {
	switch d {
	case ReasonNone:
		return "none"
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonInsufficientRole:
		return "insufficient_role"
	}
	return fmt.Sprintf("reason(%d)", int(d))
}

// Decision is the result of Admit.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the admitting decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a denying decision.
func Deny(reason DenyReason) Decision { return Decision{Reason: reason} }

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return "deny(" + d.Reason.String() + ")"
}

// Admit decides whether p satisfies req.
func Admit(p *Principal, req Requirement) Decision {
	switch req {
	case RequirePublic:
		return Allow()
	case RequireAuthenticated:
		if p == nil {
			return Deny(ReasonUnauthenticated)
		}
		return Allow()
	case RequireAdmin:
		if p == nil {
			return Deny(ReasonUnauthenticated)
		}
		if p.Role != RoleAdmin {
			return Deny(ReasonInsufficientRole)
		}
		return Allow()
	}
	// Unknown requirements deny
	if p == nil {
		return Deny(ReasonUnauthenticated)
	}
	return Deny(ReasonInsufficientRole)
}
