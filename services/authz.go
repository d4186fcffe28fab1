package services

import (
	"fmt"

	"teamcollab/apperror"
	"teamcollab/models"
)

// Operation names a guarded action.
type Operation string

const (
	OpReadProjects    Operation = "projects:read"
	OpCreateProject   Operation = "projects:create"
	OpUpdateProject   Operation = "projects:update"
	OpDeleteProject   Operation = "projects:delete"
	OpReadTasks       Operation = "tasks:read"
	OpCreateTask      Operation = "tasks:create"
	OpUpdateTask      Operation = "tasks:update"
	OpDeleteTask      Operation = "tasks:delete"
	OpReadMessages    Operation = "messages:read"
	OpSendMessage     Operation = "messages:send"
	OpCreateTeam      Operation = "teams:create"
	OpListOwnedTeams  Operation = "teams:list"
	OpSelectTeam      Operation = "teams:select"
	OpViewOwnRoster   Operation = "teams:roster"
	OpAddTeamMember   Operation = "teams:add-member"
	OpViewTeamMembers Operation = "teams:members"
	OpListUsers       Operation = "users:list"
)

var anyRole = []models.Role{models.RoleAdmin, models.RoleManager, models.RoleMember}

// Policy maps each operation to the roles allowed to perform it.
type Policy map[Operation][]models.Role

// DefaultPolicy is the role table of the service. Task deletion is ADMIN only,
// the same as project deletion.
func DefaultPolicy() Policy {
	return Policy{
		OpReadProjects:    anyRole,
		OpCreateProject:   {models.RoleAdmin, models.RoleManager},
		OpUpdateProject:   {models.RoleAdmin, models.RoleManager},
		OpDeleteProject:   {models.RoleAdmin},
		OpReadTasks:       anyRole,
		OpCreateTask:      {models.RoleAdmin, models.RoleManager},
		OpUpdateTask:      {models.RoleAdmin, models.RoleManager},
		OpDeleteTask:      {models.RoleAdmin},
		OpReadMessages:    anyRole,
		OpSendMessage:     anyRole,
		OpCreateTeam:      anyRole,
		OpListOwnedTeams:  anyRole,
		OpSelectTeam:      anyRole,
		OpViewOwnRoster:   anyRole,
		OpAddTeamMember:   {models.RoleAdmin, models.RoleManager},
		OpViewTeamMembers: {models.RoleAdmin},
		OpListUsers:       {models.RoleAdmin},
	}
}

// Allows reports whether role may perform op. Unknown operations are denied.
func (p Policy) Allows(role models.Role, op Operation) bool {
	for _, r := range p[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize returns FORBIDDEN when user's role is outside the role set of op.
func (p Policy) Authorize(user *models.User, op Operation) error {
	if user == nil {
		return apperror.Unauthenticated(apperror.CodeMissingToken, "authentication required")
	}
	if !p.Allows(user.Role, op) {
		return apperror.Forbidden(apperror.CodeInsufficientRole,
			fmt.Sprintf("role %s is not allowed to perform %s", user.Role, op))
	}
	return nil
}
