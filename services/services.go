// Package services holds the business operations behind the REST routes and
// the realtime relay. Every method takes the resolved caller and scopes its
// reads and writes to the caller's teams.
package services

import (
	"errors"

	"gorm.io/gorm"

	"teamcollab/apperror"
)

// Services bundles the stores used by the transport layers.
type Services struct {
	Policy   Policy
	Users    *UserService
	Teams    *TeamService
	Projects *ProjectService
	Tasks    *TaskService
	Messages *MessageService
}

func New(db *gorm.DB) *Services {
	users := NewUserService(db)
	teams := NewTeamService(db, users)
	users.teams = teams
	projects := NewProjectService(db, teams)
	return &Services{
		Policy:   DefaultPolicy(),
		Users:    users,
		Teams:    teams,
		Projects: projects,
		Tasks:    NewTaskService(db, teams, projects),
		Messages: NewMessageService(db, teams),
	}
}

// notFoundOr converts gorm's missing-record error into NOT_FOUND for resource
// and everything else into INTERNAL.
func notFoundOr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(resource)
	}
	return apperror.Wrap(err, "failed to load "+resource)
}

// ambiguous marks a failure that happened after a write committed.
func ambiguous(resource string, err error) error {
	return &apperror.Error{
		Kind:    apperror.KindInternal,
		Code:    apperror.CodeAmbiguousOutcome,
		Message: resource + " was saved but could not be read back",
		Err:     err,
	}
}
