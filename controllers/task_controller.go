package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamcollab/middleware"
	"teamcollab/services"
	"teamcollab/utils"
)

type TaskController struct {
	Tasks  *services.TaskService
	Logger *logrus.Entry
}

func NewTaskController(tasks *services.TaskService, logger *logrus.Entry) *TaskController {
	return &TaskController{
		Tasks:  tasks,
		Logger: logger,
	}
}

// GetTasks lists the tasks of the project named by the projectId query
// parameter.
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	projectID, err := utils.ParseID(c.Query("projectId"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	tasks, err := tc.Tasks.ListByProject(c.UserContext(), middleware.CurrentUser(c), projectID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(tasks)
}

func (tc *TaskController) GetMyTasks(c *fiber.Ctx) error {
	tasks, err := tc.Tasks.ListMine(c.UserContext(), middleware.CurrentUser(c), c.Query("status"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(tasks)
}

func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	var req services.CreateTaskInput
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	task, err := tc.Tasks.Create(c.UserContext(), middleware.CurrentUser(c), req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	tc.Logger.WithFields(logrus.Fields{"task_id": task.ID, "project_id": task.ProjectID}).Info("task created")
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	id, err := utils.ParseID(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	var req services.UpdateTaskInput
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	task, err := tc.Tasks.Update(c.UserContext(), middleware.CurrentUser(c), id, req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(task)
}

func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	id, err := utils.ParseID(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	if err := tc.Tasks.Delete(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return utils.ErrorResponse(c, err)
	}

	tc.Logger.WithField("task_id", id).Info("task deleted")
	return c.JSON(fiber.Map{"message": "Task deleted"})
}
