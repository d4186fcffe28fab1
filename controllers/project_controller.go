package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamcollab/middleware"
	"teamcollab/services"
	"teamcollab/utils"
)

type ProjectController struct {
	Projects *services.ProjectService
	Logger   *logrus.Entry
}

func NewProjectController(projects *services.ProjectService, logger *logrus.Entry) *ProjectController {
	return &ProjectController{
		Projects: projects,
		Logger:   logger,
	}
}

func (pc *ProjectController) GetProjects(c *fiber.Ctx) error {
	projects, err := pc.Projects.List(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(projects)
}

func (pc *ProjectController) GetProject(c *fiber.Ctx) error {
	id, err := utils.ParseID(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	project, err := pc.Projects.Get(c.UserContext(), middleware.CurrentUser(c), id)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(project)
}

func (pc *ProjectController) CreateProject(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req services.CreateProjectInput
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	project, err := pc.Projects.Create(c.UserContext(), user, req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	pc.Logger.WithFields(logrus.Fields{"project_id": project.ID, "team_id": project.TeamID}).Info("project created")
	return c.Status(fiber.StatusCreated).JSON(project)
}

func (pc *ProjectController) UpdateProject(c *fiber.Ctx) error {
	id, err := utils.ParseID(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	var req services.UpdateProjectInput
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	project, err := pc.Projects.Update(c.UserContext(), middleware.CurrentUser(c), id, req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(project)
}

func (pc *ProjectController) DeleteProject(c *fiber.Ctx) error {
	id, err := utils.ParseID(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	if err := pc.Projects.Delete(c.UserContext(), middleware.CurrentUser(c), id); err != nil {
		return utils.ErrorResponse(c, err)
	}

	pc.Logger.WithField("project_id", id).Info("project deleted")
	return c.JSON(fiber.Map{"message": "Project deleted"})
}
