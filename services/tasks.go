package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"teamcollab/apperror"
	"teamcollab/models"
	"teamcollab/utils"
)

type TaskService struct {
	db       *gorm.DB
	teams    *TeamService
	projects *ProjectService
}

func NewTaskService(db *gorm.DB, teams *TeamService, projects *ProjectService) *TaskService {
	return &TaskService{db: db, teams: teams, projects: projects}
}

type CreateTaskInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"omitempty,max=5000"`
	Status      string `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	ProjectID   uint   `json:"projectId" validate:"required"`
	AssignedTo  *uint  `json:"assignedTo"`
}

// UpdateTaskInput is a partial update; an explicit null assignedTo clears
// the assignee.
type UpdateTaskInput struct {
	Title       utils.Optional[string] `json:"title"`
	Description utils.Optional[string] `json:"description"`
	Status      utils.Optional[string] `json:"status"`
	AssignedTo  utils.Optional[uint]   `json:"assignedTo"`
}

func invalidStatus(s string) error {
	return apperror.BadRequest(apperror.CodeInvalidStatus, "status must be one of [todo in-progress done], got "+s)
}

func (s *TaskService) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Assignee")
}

// ListByProject returns the tasks of a project in the caller's active team.
func (s *TaskService) ListByProject(ctx context.Context, user *models.User, projectID uint) ([]models.Task, error) {
	if projectID == 0 {
		return nil, apperror.BadRequest(apperror.CodeInvalidID, "projectId is required")
	}
	if _, err := s.projects.scoped(s.db.WithContext(ctx), user, projectID); err != nil {
		return nil, err
	}
	tasks := []models.Task{}
	if err := s.preloaded(ctx).Where("project_id = ?", projectID).Order("id").Find(&tasks).Error; err != nil {
		return nil, apperror.Internal("Failed to fetch tasks", err)
	}
	return tasks, nil
}

// ListMine returns the tasks assigned to the caller inside the active team,
// optionally filtered by status.
func (s *TaskService) ListMine(ctx context.Context, user *models.User, status string) ([]models.Task, error) {
	tasks := []models.Task{}
	q := s.preloaded(ctx).Preload("Project").
		Joins("JOIN projects ON projects.id = tasks.project_id").
		Where("tasks.assignee_id = ? AND projects.team_id = ?", user.ID, user.ActiveTeam())
	if status != "" {
		st, ok := models.ParseTaskStatus(status)
		if !ok {
			return nil, invalidStatus(status)
		}
		q = q.Where("tasks.status = ?", st)
	}
	if !user.HasActiveTeam() {
		return tasks, nil
	}
	if err := q.Order("tasks.id").Find(&tasks).Error; err != nil {
		return nil, apperror.Internal("Failed to fetch assigned tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) scoped(db *gorm.DB, user *models.User, id uint) (*models.Task, error) {
	if !user.HasActiveTeam() {
		return nil, apperror.NotFound("task")
	}
	var task models.Task
	err := db.Joins("JOIN projects ON projects.id = tasks.project_id").
		Where("tasks.id = ? AND projects.team_id = ?", id, user.ActiveTeam()).
		First(&task).Error
	if err != nil {
		return nil, notFoundOr(err, "task")
	}
	return &task, nil
}

func (s *TaskService) checkAssignee(ctx context.Context, teamID uint, assignee uint) error {
	ok, err := s.teams.IsMember(ctx, teamID, assignee)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.BadRequest(apperror.CodeInvalidAssignee, "assignee is not a member of this team")
	}
	return nil
}

// Create adds a task to a project of the caller's active team. The status
// defaults to todo.
func (s *TaskService) Create(ctx context.Context, user *models.User, in CreateTaskInput) (*models.Task, error) {
	if in.ProjectID == 0 {
		return nil, apperror.BadRequest(apperror.CodeInvalidID, "projectId is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.BadRequest(apperror.CodeValidation, "title is required")
	}
	status := models.TaskTodo
	if in.Status != "" {
		st, ok := models.ParseTaskStatus(in.Status)
		if !ok {
			return nil, invalidStatus(in.Status)
		}
		status = st
	}
	project, err := s.projects.scoped(s.db.WithContext(ctx), user, in.ProjectID)
	if err != nil {
		return nil, err
	}
	var assignee *uint
	if in.AssignedTo != nil && *in.AssignedTo != 0 {
		if err := s.checkAssignee(ctx, project.TeamID, *in.AssignedTo); err != nil {
			return nil, err
		}
		assignee = in.AssignedTo
	}

	creator := user.ID
	task := models.Task{
		Title:       title,
		Description: in.Description,
		Status:      status,
		ProjectID:   project.ID,
		AssigneeID:  assignee,
		CreatedByID: &creator,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, apperror.Internal("Failed to create task", err)
	}

	created, err := s.scoped(s.preloaded(ctx), user, task.ID)
	if err != nil {
		return nil, ambiguous("task", err)
	}
	return created, nil
}

// Update applies the present fields of in to a task of the active team.
func (s *TaskService) Update(ctx context.Context, user *models.User, id uint, in UpdateTaskInput) (*models.Task, error) {
	task, err := s.scoped(s.db.WithContext(ctx), user, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Title.Set {
		if in.Title.Value == nil || strings.TrimSpace(*in.Title.Value) == "" {
			return nil, apperror.BadRequest(apperror.CodeValidation, "title cannot be empty")
		}
		updates["title"] = strings.TrimSpace(*in.Title.Value)
	}
	if in.Description.Set {
		desc := ""
		if in.Description.Value != nil {
			desc = *in.Description.Value
		}
		updates["description"] = desc
	}
	if in.Status.Set {
		if in.Status.Value == nil {
			return nil, invalidStatus("null")
		}
		st, ok := models.ParseTaskStatus(*in.Status.Value)
		if !ok {
			return nil, invalidStatus(*in.Status.Value)
		}
		updates["status"] = st
	}
	if in.AssignedTo.Set {
		if in.AssignedTo.Value == nil || *in.AssignedTo.Value == 0 {
			updates["assignee_id"] = nil
		} else {
			if err := s.checkAssignee(ctx, user.ActiveTeam(), *in.AssignedTo.Value); err != nil {
				return nil, err
			}
			updates["assignee_id"] = *in.AssignedTo.Value
		}
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return nil, apperror.Internal("Failed to update task", err)
		}
	}

	updated, err := s.scoped(s.preloaded(ctx), user, task.ID)
	if err != nil {
		return nil, ambiguous("task", err)
	}
	return updated, nil
}

// Delete removes a task of the active team.
func (s *TaskService) Delete(ctx context.Context, user *models.User, id uint) error {
	task, err := s.scoped(s.db.WithContext(ctx), user, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Task{}, task.ID).Error; err != nil {
		return apperror.Internal("Failed to delete task", err)
	}
	return nil
}
