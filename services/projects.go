package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"teamcollab/apperror"
	"teamcollab/models"
	"teamcollab/utils"
)

const projectAssignmentsTable = "project_assignments"

type ProjectService struct {
	db    *gorm.DB
	teams *TeamService
}

func NewProjectService(db *gorm.DB, teams *TeamService) *ProjectService {
	return &ProjectService{db: db, teams: teams}
}

type CreateProjectInput struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"omitempty,max=5000"`
	AssignedUsers []uint `json:"assignedUsers"`
}

// UpdateProjectInput is a partial update. AssignedUsers, when present,
// replaces the stored assignment; an empty list or null clears it.
type UpdateProjectInput struct {
	Name          utils.Optional[string] `json:"name"`
	Description   utils.Optional[string] `json:"description"`
	AssignedUsers utils.Optional[[]uint] `json:"assignedUsers"`
}

func requireActiveTeam(user *models.User) (uint, error) {
	if !user.HasActiveTeam() {
		return 0, apperror.BadRequest(apperror.CodeNoActiveTeam, "User is not assigned to any team")
	}
	return user.ActiveTeam(), nil
}

// List returns the projects of the caller's active team.
func (s *ProjectService) List(ctx context.Context, user *models.User) ([]models.Project, error) {
	projects := []models.Project{}
	if !user.HasActiveTeam() {
		return projects, nil
	}
	err := s.db.WithContext(ctx).
		Preload("AssignedUsers").
		Where("team_id = ?", user.ActiveTeam()).
		Order("id").
		Find(&projects).Error
	if err != nil {
		return nil, apperror.Internal("Failed to get projects", err)
	}
	return projects, nil
}

// Get loads one project of the caller's active team. Projects of any other
// team are reported as missing.
func (s *ProjectService) Get(ctx context.Context, user *models.User, id uint) (*models.Project, error) {
	return s.scoped(s.db.WithContext(ctx).Preload("AssignedUsers"), user, id)
}

func (s *ProjectService) scoped(db *gorm.DB, user *models.User, id uint) (*models.Project, error) {
	if !user.HasActiveTeam() {
		return nil, apperror.NotFound("project")
	}
	var project models.Project
	if err := db.Where("id = ? AND team_id = ?", id, user.ActiveTeam()).First(&project).Error; err != nil {
		return nil, notFoundOr(err, "project")
	}
	return &project, nil
}

// Create stores a project in the caller's active team. Assigned user ids that
// are not on the team roster are dropped.
func (s *ProjectService) Create(ctx context.Context, user *models.User, in CreateProjectInput) (*models.Project, error) {
	teamID, err := requireActiveTeam(user)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.BadRequest(apperror.CodeValidation, "name is required")
	}
	assigned, err := s.teams.FilterMembers(ctx, teamID, in.AssignedUsers)
	if err != nil {
		return nil, err
	}

	project := models.Project{Name: name, Description: in.Description, TeamID: teamID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("AssignedUsers").Create(&project).Error; err != nil {
			return apperror.Internal("Failed to create project", err)
		}
		return replaceAssignments(tx, project.ID, assigned)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.Get(ctx, user, project.ID)
	if err != nil {
		return nil, ambiguous("project", err)
	}
	return created, nil
}

// Update applies the present fields of in to a project of the active team.
func (s *ProjectService) Update(ctx context.Context, user *models.User, id uint, in UpdateProjectInput) (*models.Project, error) {
	project, err := s.scoped(s.db.WithContext(ctx), user, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name.Set {
		if in.Name.Value == nil || strings.TrimSpace(*in.Name.Value) == "" {
			return nil, apperror.BadRequest(apperror.CodeValidation, "name cannot be empty")
		}
		updates["name"] = strings.TrimSpace(*in.Name.Value)
	}
	if in.Description.Set {
		desc := ""
		if in.Description.Value != nil {
			desc = *in.Description.Value
		}
		updates["description"] = desc
	}

	var assigned []uint
	if in.AssignedUsers.Set && in.AssignedUsers.Value != nil {
		if assigned, err = s.teams.FilterMembers(ctx, project.TeamID, *in.AssignedUsers.Value); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Project{}).Where("id = ?", project.ID).Updates(updates).Error; err != nil {
				return apperror.Internal("Failed to update project", err)
			}
		}
		if in.AssignedUsers.Set {
			return replaceAssignments(tx, project.ID, assigned)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.Get(ctx, user, project.ID)
	if err != nil {
		return nil, ambiguous("project", err)
	}
	return updated, nil
}

// Delete removes a project of the active team together with its tasks and
// assignments.
func (s *ProjectService) Delete(ctx context.Context, user *models.User, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := s.scoped(tx, user, id)
		if err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.Task{}).Error; err != nil {
			return apperror.Internal("Failed to delete project tasks", err)
		}
		if err := replaceAssignments(tx, project.ID, nil); err != nil {
			return err
		}
		if err := tx.Delete(&models.Project{}, project.ID).Error; err != nil {
			return apperror.Internal("Failed to delete project", err)
		}
		utils.LogEvent("project_deleted", map[string]interface{}{"project_id": project.ID, "team_id": project.TeamID})
		return nil
	})
}

// replaceAssignments overwrites the join rows of projectID with userIDs.
func replaceAssignments(tx *gorm.DB, projectID uint, userIDs []uint) error {
	if err := tx.Exec("DELETE FROM "+projectAssignmentsTable+" WHERE project_id = ?", projectID).Error; err != nil {
		return apperror.Internal("Failed to clear project assignments", err)
	}
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, map[string]interface{}{"project_id": projectID, "user_id": id})
	}
	if err := tx.Table(projectAssignmentsTable).Create(rows).Error; err != nil {
		return apperror.Internal("Failed to assign project users", err)
	}
	return nil
}
