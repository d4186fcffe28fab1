package routes

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberutils "github.com/gofiber/fiber/v2/utils"

	"teamcollab/apperror"
	controller "teamcollab/controllers"
	"teamcollab/identity"
	"teamcollab/middleware"
	"teamcollab/realtime"
	"teamcollab/services"
	"teamcollab/utils"
)

const requestLogFormat = "[${time}] ${status} - ${latency} ${method} ${path}\n"

// Dependencies is everything the HTTP surface needs from main.
type Dependencies struct {
	// Context is cancelled on shutdown; websocket connections end with it.
	Context context.Context

	Services *services.Services
	Resolver *identity.Resolver
	Relay    *realtime.Relay

	// LimiterStorage backs the write rate limiter; nil keeps it in memory.
	LimiterStorage  fiber.Storage
	RateLimitWrites int

	// LogRequests enables the request logger on the API group.
	LogRequests bool
}

func SetupAuthRoutes(api fiber.Router, deps Dependencies) {
	authController := controller.NewAuthController(deps.Resolver, utils.Component("auth"))

	auth := api.Group("/auth")
	auth.Post("/sync", middleware.WriteRateLimiter(deps.RateLimitWrites, deps.LimiterStorage), authController.Sync)
}

func SetupAPIRoutes(api fiber.Router, deps Dependencies) {
	svc := deps.Services
	policy := svc.Policy
	allow := func(op services.Operation) fiber.Handler {
		return middleware.Authorize(policy, op)
	}

	projectController := controller.NewProjectController(svc.Projects, utils.Component("projects"))
	taskController := controller.NewTaskController(svc.Tasks, utils.Component("tasks"))
	teamController := controller.NewTeamController(svc.Teams, utils.Component("teams"))
	messageController := controller.NewMessageController(svc.Messages, utils.Component("messages"))

	protected := middleware.Protected(deps.Resolver)

	projects := api.Group("/projects", protected)
	projects.Get("/", allow(services.OpReadProjects), projectController.GetProjects)
	projects.Post("/", allow(services.OpCreateProject), projectController.CreateProject)
	projects.Get("/:id", allow(services.OpReadProjects), projectController.GetProject)
	projects.Put("/:id", allow(services.OpUpdateProject), projectController.UpdateProject)
	projects.Delete("/:id", allow(services.OpDeleteProject), projectController.DeleteProject)

	tasks := api.Group("/tasks", protected)
	tasks.Get("/", allow(services.OpReadTasks), taskController.GetTasks)
	tasks.Get("/mine", allow(services.OpReadTasks), taskController.GetMyTasks)
	tasks.Post("/", allow(services.OpCreateTask), taskController.CreateTask)
	tasks.Put("/:id", allow(services.OpUpdateTask), taskController.UpdateTask)
	tasks.Delete("/:id", allow(services.OpDeleteTask), taskController.DeleteTask)

	messages := api.Group("/messages", protected)
	messages.Get("/:teamId", allow(services.OpReadMessages), messageController.GetHistory)

	teams := api.Group("/teams", protected)
	teams.Post("/", allow(services.OpCreateTeam), teamController.CreateTeam)
	teams.Get("/", allow(services.OpListOwnedTeams), teamController.ListTeams)
	teams.Get("/me", allow(services.OpViewOwnRoster), teamController.GetMyTeam)
	teams.Get("/team", allow(services.OpViewOwnRoster), teamController.GetRoster)
	teams.Get("/users/all", allow(services.OpListUsers), teamController.ListUsers)
	teams.Patch("/select", allow(services.OpSelectTeam), teamController.SelectTeam)
	teams.Post("/:teamId/add-user",
		allow(services.OpAddTeamMember),
		middleware.WriteRateLimiter(deps.RateLimitWrites, deps.LimiterStorage),
		teamController.AddUser,
	)
	teams.Get("/:teamId/members", allow(services.OpViewTeamMembers), teamController.GetMembers)
}

// SetupRelayRoutes mounts the websocket relay. The credential is checked
// before the upgrade so unauthenticated handshakes get a plain 401.
func SetupRelayRoutes(app *fiber.App, deps Dependencies) {
	relayController := controller.NewRelayController(deps.Context, deps.Relay, utils.Component("ws"))

	app.Get("/ws",
		middleware.ProtectedUpgrade(deps.Resolver),
		middleware.Authorize(deps.Services.Policy, services.OpSendMessage),
		relayController.RequireUpgrade,
		relayController.Handle(),
	)
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	var handlers []fiber.Handler
	if deps.LogRequests {
		handlers = append(handlers, logger.New(logger.Config{
			Format: requestLogFormat,
		}))
	}
	api := app.Group("/api", handlers...)

	SetupAuthRoutes(api, deps)
	SetupAPIRoutes(api, deps)
	SetupRelayRoutes(app, deps)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(apperror.Body{
			Error: "The requested resource was not found",
			Code:  string(apperror.KindNotFound),
			Kind:  apperror.KindNotFound,
		})
	})
}

// ErrorHandler renders errors that escape the handlers, including fiber's
// own, in the shared error body.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		return utils.ErrorResponse(c, err)
	}

	kind := apperror.KindBadRequest
	switch {
	case fe.Code == fiber.StatusUnauthorized:
		kind = apperror.KindUnauthenticated
	case fe.Code == fiber.StatusForbidden:
		kind = apperror.KindForbidden
	case fe.Code == fiber.StatusNotFound:
		kind = apperror.KindNotFound
	case fe.Code == fiber.StatusConflict:
		kind = apperror.KindConflict
	case fe.Code >= fiber.StatusInternalServerError:
		kind = apperror.KindInternal
	}
	code := strings.ToUpper(strings.ReplaceAll(fiberutils.StatusMessage(fe.Code), " ", "_"))
	return c.Status(fe.Code).JSON(apperror.Body{Error: fe.Message, Code: code, Kind: kind})
}
