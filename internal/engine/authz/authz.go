// Package authz holds the closed role enumeration and the single
// authorization policy consulted by every state-transition entry point.
package authz

import "followup-engine/internal/common/errors"

// Role is a closed enumeration of actor roles.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTeamMember Role = "team_member"
	RoleClient     Role = "client"
)

// Actor is the identity performing an operation, supplied by the external
// auth collaborator. Core operations take it explicitly; there is no ambient
// "current user".
type Actor struct {
	ID   string
	Role Role
}

// Action names an authorizable operation.
type Action string

const (
	ActionManageTemplate Action = "manage_template"
	ActionManageTask     Action = "manage_task"
	ActionSkipOccurrence Action = "skip_occurrence"
	ActionSendRequest    Action = "send_request"
	ActionCancelRequest  Action = "cancel_request"
	ActionSubmitItem     Action = "submit_item"
	ActionReviewItem     Action = "review_item"
	ActionDecideApproval Action = "decide_approval"
)

// policy is the single source of truth for which roles may perform which
// actions. Kept as data so there is exactly one place to audit.
var policy = map[Action][]Role{
	ActionManageTemplate: {RoleSuperAdmin, RoleAdmin, RoleManager},
	ActionManageTask:     {RoleSuperAdmin, RoleAdmin, RoleManager, RoleTeamMember},
	ActionSkipOccurrence: {RoleSuperAdmin, RoleAdmin, RoleManager},
	ActionSendRequest:    {RoleSuperAdmin, RoleAdmin, RoleManager, RoleTeamMember},
	ActionCancelRequest:  {RoleSuperAdmin, RoleAdmin, RoleManager},
	ActionSubmitItem:     {RoleClient, RoleSuperAdmin, RoleAdmin, RoleManager, RoleTeamMember},
	ActionReviewItem:     {RoleSuperAdmin, RoleAdmin, RoleManager, RoleTeamMember},
	ActionDecideApproval: {RoleSuperAdmin, RoleAdmin, RoleManager, RoleTeamMember},
}

// Can reports whether the actor's role permits the action.
func Can(actor Actor, action Action) bool {
	for _, r := range policy[action] {
		if actor.Role == r {
			return true
		}
	}
	return false
}

// Require returns an UNAUTHORIZED error when the actor cannot perform the
// action.
func Require(actor Actor, action Action) error {
	if !Can(actor, action) {
		return errors.NewUnauthorizedError(actor.ID, string(action))
	}
	return nil
}
