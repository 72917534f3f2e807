// Package policy centralises every permission decision taken on exceptions.
package policy

import (
	"exceptiontracker/src/apperr"
	"exceptiontracker/src/model"
)

// Action is an operation a principal may attempt on an exception.
type Action string

const (
	ActionView      Action = "view"
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionResolve   Action = "resolve"
	ActionComment   Action = "comment"
	ActionAssign    Action = "assign"
	ActionReassign  Action = "reassign"
	ActionClose     Action = "close"
	ActionReopen    Action = "reopen"
	ActionEscalate  Action = "escalate"
	ActionDelete    Action = "delete"
	ActionManageSLA Action = "manage_sla"
)

// scope is the reach a role has for an action.
type scope int

const (
	deny scope = iota
	// anyVertical ignores vertical isolation.
	anyVertical
	// ownVertical requires the exception to live in the principal's vertical.
	ownVertical
	// ownAssignment additionally requires the exception to be assigned to the principal.
	ownAssignment
)

var elevated = map[model.Role]scope{
	model.RoleGlobalAdmin:     anyVertical,
	model.RoleSecondaryGlobal: anyVertical,
	model.RoleVerticalLead:    ownVertical,
	model.RoleStaff:           deny,
}

var capabilities = map[Action]map[model.Role]scope{
	ActionView: {
		model.RoleGlobalAdmin:     anyVertical,
		model.RoleSecondaryGlobal: anyVertical,
		model.RoleVerticalLead:    ownVertical,
		model.RoleStaff:           ownVertical,
	},
	ActionCreate: {
		model.RoleGlobalAdmin:     anyVertical,
		model.RoleSecondaryGlobal: anyVertical,
		model.RoleVerticalLead:    ownVertical,
		model.RoleStaff:           ownVertical,
	},
	ActionComment: {
		model.RoleGlobalAdmin:     anyVertical,
		model.RoleSecondaryGlobal: anyVertical,
		model.RoleVerticalLead:    ownVertical,
		model.RoleStaff:           ownVertical,
	},
	ActionUpdate: {
		model.RoleGlobalAdmin:     anyVertical,
		model.RoleSecondaryGlobal: anyVertical,
		model.RoleVerticalLead:    ownVertical,
		model.RoleStaff:           ownAssignment,
	},
	ActionResolve: {
		model.RoleGlobalAdmin:     anyVertical,
		model.RoleSecondaryGlobal: anyVertical,
		model.RoleVerticalLead:    ownVertical,
		model.RoleStaff:           ownAssignment,
	},
	ActionAssign:   elevated,
	ActionReassign: elevated,
	ActionClose:    elevated,
	ActionReopen:   elevated,
	ActionEscalate: elevated,
	ActionDelete: {
		model.RoleGlobalAdmin: anyVertical,
	},
	ActionManageSLA: {
		model.RoleGlobalAdmin: anyVertical,
	},
}

// Authorize decides whether p may perform action on exc. It returns a
// Forbidden error when the capability table denies it.
func Authorize(p model.Principal, action Action, exc *model.Exception) error {
	roles, ok := capabilities[action]
	if !ok {
		return apperr.Forbidden("unknown action %q", action)
	}

	switch roles[p.Role] {
	case anyVertical:
		return nil
	case ownVertical:
		if exc != nil && exc.VerticalID == p.VerticalID {
			return nil
		}
		return apperr.Forbidden("exception belongs to another vertical").
			With("action", action)
	case ownAssignment:
		if exc == nil || exc.VerticalID != p.VerticalID {
			return apperr.Forbidden("exception belongs to another vertical").
				With("action", action)
		}
		if !exc.IsAssignedTo(p.ID) {
			return apperr.Forbidden("exception is not assigned to you").
				With("action", action)
		}
		return nil
	default:
		return apperr.Forbidden("role %s may not %s exceptions", p.Role, action)
	}
}

// StatusAction is the action a generic status change from -> to is checked
// against. Moving into resolved or closed needs the same rights as resolve and
// close, and leaving either of them needs reopen rights.
func StatusAction(from, to model.ExceptionStatus) Action {
	switch {
	case to == model.StatusClosed:
		return ActionClose
	case to == model.StatusResolved:
		return ActionResolve
	case from == model.StatusResolved || from == model.StatusClosed:
		return ActionReopen
	default:
		return ActionUpdate
	}
}

// Allowed lists every action p may perform on exc.
func Allowed(p model.Principal, exc *model.Exception) []Action {
	order := []Action{
		ActionView, ActionUpdate, ActionResolve, ActionComment, ActionAssign,
		ActionReassign, ActionClose, ActionReopen, ActionEscalate, ActionDelete,
	}
	allowed := make([]Action, 0, len(order))
	for _, a := range order {
		if Authorize(p, a, exc) == nil {
			allowed = append(allowed, a)
		}
	}
	return allowed
}

// ScopeVertical resolves the vertical filter a listing or report must apply.
// Global roles keep the requested filter (nil meaning every vertical); other
// roles are pinned to their own vertical and a mismatching request is Forbidden.
func ScopeVertical(p model.Principal, requested *uint) (*uint, error) {
	if p.Role.IsGlobal() {
		return requested, nil
	}
	if _, ok := capabilities[ActionView][p.Role]; !ok {
		return nil, apperr.Forbidden("role %q may not list exceptions", p.Role)
	}
	if requested != nil && *requested != p.VerticalID {
		return nil, apperr.Forbidden("cannot read another vertical").
			With("vertical_id", *requested)
	}
	own := p.VerticalID
	return &own, nil
}
