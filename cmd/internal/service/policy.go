package service

import (
	"medibook/cmd/internal/domain/entity"
	"medibook/cmd/internal/utils/apierror"
)

type Action string

const (
	ActionViewAll    Action = "view_all"
	ActionViewOwn    Action = "view_own"
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionCancel     Action = "cancel"
	ActionCancelOwn  Action = "cancel_own"
	ActionReschedule Action = "reschedule"
	ActionViewUsers  Action = "view_users"
	ActionChangeRole Action = "change_role"
)

var permissions = map[entity.Role][]Action{
	entity.RoleAdmin: {
		ActionViewAll, ActionApprove, ActionReject, ActionCancel,
		ActionReschedule, ActionViewUsers, ActionChangeRole,
	},
	entity.RoleStaff: {
		ActionViewAll, ActionApprove, ActionReject, ActionReschedule, ActionViewUsers,
	},
	entity.RolePatient: {
		ActionViewOwn, ActionCancelOwn,
	},
}

// Authorize is the single place deciding what a role may do.
func Authorize(role entity.Role, action Action) apierror.ErrorResponse {
	for _, a := range permissions[role] {
		if a == action {
			return nil
		}
	}
	return apierror.AccessDeniedError
}

// Can is Authorize as a predicate.
func Can(role entity.Role, action Action) bool {
	return Authorize(role, action) == nil
}

// transitionActions maps a target status to the staff action it needs.
// Patients cancelling their own appointment are handled by the caller.
var transitionActions = map[entity.Status]Action{
	entity.StatusApproved:  ActionApprove,
	entity.StatusRejected:  ActionReject,
	entity.StatusCancelled: ActionCancel,
}
