package model

import "strings"

// Role is the closed set of roles a principal may hold.
type Role string

const (
	RoleGlobalAdmin     Role = "global_admin"
	RoleSecondaryGlobal Role = "secondary_global"
	RoleVerticalLead    Role = "vertical_lead"
	RoleStaff           Role = "staff"
)

// ParseRole converts a textual role to a Role. Unknown values return false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleGlobalAdmin, RoleSecondaryGlobal, RoleVerticalLead, RoleStaff:
		return r, true
	}
	return "", false
}

// IsGlobal reports whether the role sees every vertical.
func (r Role) IsGlobal() bool {
	return r == RoleGlobalAdmin || r == RoleSecondaryGlobal
}

// Principal is the authenticated actor performing an operation.
type Principal struct {
	ID         uint `json:"id"`
	Role       Role `json:"role"`
	VerticalID uint `json:"vertical_id"`
}
