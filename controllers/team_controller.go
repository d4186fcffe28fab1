package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"teamcollab/middleware"
	"teamcollab/services"
	"teamcollab/utils"
)

type TeamController struct {
	Teams  *services.TeamService
	Logger *logrus.Entry
}

func NewTeamController(teams *services.TeamService, logger *logrus.Entry) *TeamController {
	return &TeamController{
		Teams:  teams,
		Logger: logger,
	}
}

type SelectTeamRequest struct {
	TeamID uint `json:"teamId" validate:"required"`
}

func (tc *TeamController) CreateTeam(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var req services.CreateTeamInput
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	team, updated, err := tc.Teams.CreateTeam(c.UserContext(), user, req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	tc.Logger.WithFields(logrus.Fields{"team_id": team.ID, "admin_id": user.ID}).Info("team created")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"team": team,
		"user": updated,
	})
}

// GetMyTeam returns the caller's active team with its roster.
func (tc *TeamController) GetMyTeam(c *fiber.Ctx) error {
	team, err := tc.Teams.GetActiveTeam(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(team)
}

func (tc *TeamController) ListTeams(c *fiber.Ctx) error {
	teams, err := tc.Teams.ListOwnedTeams(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"teams": teams})
}

func (tc *TeamController) SelectTeam(c *fiber.Ctx) error {
	var req SelectTeamRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	user, err := tc.Teams.SetActiveTeam(c.UserContext(), middleware.CurrentUser(c), req.TeamID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (tc *TeamController) AddUser(c *fiber.Ctx) error {
	caller := middleware.CurrentUser(c)

	teamID, err := utils.ParseID(c.Params("teamId"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	var req services.AddMemberInput
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	user, err := tc.Teams.AddUserToTeam(c.UserContext(), caller, teamID, req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	tc.Logger.WithFields(logrus.Fields{
		"team_id":  teamID,
		"user_id":  user.ID,
		"added_by": caller.ID,
	}).Info("user added to team")
	return c.JSON(fiber.Map{
		"message": "User added to team",
		"user":    user,
	})
}

func (tc *TeamController) GetMembers(c *fiber.Ctx) error {
	teamID, err := utils.ParseID(c.Params("teamId"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	members, err := tc.Teams.GetTeamMembers(c.UserContext(), middleware.CurrentUser(c), teamID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(members)
}

// GetRoster returns the roster of the caller's active team.
func (tc *TeamController) GetRoster(c *fiber.Ctx) error {
	members, err := tc.Teams.GetMyTeamRoster(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(members)
}

func (tc *TeamController) ListUsers(c *fiber.Ctx) error {
	users, err := tc.Teams.ListUsers(c.UserContext(), middleware.CurrentUser(c))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}
