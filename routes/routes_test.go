package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"teamcollab/apperror"
	"teamcollab/config"
	"teamcollab/identity"
	"teamcollab/models"
	"teamcollab/realtime"
	"teamcollab/services"
)

const testSecret = "routes-secret"

type testServer struct {
	t   *testing.T
	app *fiber.App
	svc *services.Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db))

	svc := services.New(db)
	verifier, err := identity.NewJWTVerifier(config.IdentityConfig{JWTSecret: testSecret})
	require.NoError(t, err)

	hub := realtime.NewHub()
	relay := realtime.NewRelay(hub, svc.Messages, svc.Teams, realtime.NewLocalBackplane(hub), realtime.Config{})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, Dependencies{
		Services:        svc,
		Resolver:        identity.NewResolver(verifier, svc.Users),
		Relay:           relay,
		RateLimitWrites: 1000,
	})
	return &testServer{t: t, app: app, svc: svc}
}

func token(t *testing.T, email, name string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   email,
		"email": email,
		"name":  name,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// do sends a request and decodes the JSON response into out when out is
// non-nil. It returns the status code.
func (s *testServer) do(method, path, tok string, body interface{}, out interface{}) int {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) sync(tok string, body interface{}) models.User {
	s.t.Helper()
	var user models.User
	require.Equal(s.t, http.StatusOK, s.do("POST", "/api/auth/sync", tok, body, &user))
	return user
}

func TestTeamProjectTaskScenario(t *testing.T) {
	s := newTestServer(t)

	adminTok := token(t, "ada@example.com", "Ada")
	memberTok := token(t, "bob@example.com", "Bob")
	outsiderTok := token(t, "carol@example.com", "Carol")

	admin := s.sync(adminTok, map[string]string{"name": "Ada"})
	assert.Equal(t, models.RoleMember, admin.Role)
	assert.Nil(t, admin.ActiveTeamID)

	var created struct {
		Team models.Team `json:"team"`
		User models.User `json:"user"`
	}
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/teams", adminTok, map[string]string{"name": "Eng"}, &created))
	eng := created.Team
	require.NotNil(t, created.User.ActiveTeamID)
	assert.Equal(t, eng.ID, *created.User.ActiveTeamID)
	assert.Equal(t, models.RoleAdmin, created.User.Role)

	bob := s.sync(memberTok, nil)
	assert.Equal(t, models.RoleMember, bob.Role)

	addPath := fmt.Sprintf("/api/teams/%d/add-user", eng.ID)
	var added struct {
		Message string      `json:"message"`
		User    models.User `json:"user"`
	}
	require.Equal(t, http.StatusOK, s.do("POST", addPath, adminTok, map[string]string{"email": "bob@example.com"}, &added))
	assert.Equal(t, bob.ID, added.User.ID)
	require.NotNil(t, added.User.ActiveTeamID)
	assert.Equal(t, eng.ID, *added.User.ActiveTeamID)

	var conflict apperror.Body
	require.Equal(t, http.StatusConflict, s.do("POST", addPath, adminTok, map[string]string{"email": "bob@example.com"}, &conflict))
	assert.Equal(t, apperror.CodeAlreadyMember, conflict.Code)

	var roster []models.UserSummary
	require.Equal(t, http.StatusOK, s.do("GET", fmt.Sprintf("/api/teams/%d/members", eng.ID), adminTok, nil, &roster))
	require.Len(t, roster, 2)
	assert.ElementsMatch(t, []uint{created.User.ID, bob.ID}, []uint{roster[0].ID, roster[1].ID})

	carol := s.sync(outsiderTok, nil)
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/teams", outsiderTok, map[string]string{"name": "Other"}, nil))

	var website models.Project
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/projects", adminTok, map[string]interface{}{
		"name":          "Website",
		"assignedUsers": []uint{bob.ID, carol.ID},
	}, &website))
	assert.Equal(t, eng.ID, website.TeamID)
	require.Len(t, website.AssignedUsers, 1)
	assert.Equal(t, bob.ID, website.AssignedUsers[0].ID)

	var task models.Task
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/tasks", adminTok, map[string]interface{}{
		"title":      "Landing page",
		"projectId":  website.ID,
		"assignedTo": bob.ID,
	}, &task))
	assert.Equal(t, models.TaskTodo, task.Status)

	var mine []models.Task
	require.Equal(t, http.StatusOK, s.do("GET", "/api/tasks/mine", memberTok, nil, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, task.ID, mine[0].ID)

	var listed []models.Task
	require.Equal(t, http.StatusOK, s.do("GET", fmt.Sprintf("/api/tasks?projectId=%d", website.ID), memberTok, nil, &listed))
	assert.Len(t, listed, 1)

	projectPath := fmt.Sprintf("/api/projects/%d", website.ID)

	var forbidden apperror.Body
	require.Equal(t, http.StatusForbidden, s.do("DELETE", projectPath, memberTok, nil, &forbidden))
	assert.Equal(t, apperror.KindForbidden, forbidden.Kind)

	var hidden apperror.Body
	require.Equal(t, http.StatusNotFound, s.do("GET", projectPath, outsiderTok, nil, &hidden))
	assert.Equal(t, apperror.KindNotFound, hidden.Kind)
	assert.Equal(t, http.StatusNotFound, s.do("PUT", projectPath, outsiderTok, map[string]string{"name": "Hijacked"}, nil))
	assert.Equal(t, http.StatusNotFound, s.do("DELETE", projectPath, outsiderTok, nil, nil))

	var renamed models.Project
	require.Equal(t, http.StatusOK, s.do("PUT", projectPath, adminTok, map[string]string{"name": "Website v2"}, &renamed))
	assert.Equal(t, "Website v2", renamed.Name)
	require.Len(t, renamed.AssignedUsers, 1)

	var deleted map[string]string
	require.Equal(t, http.StatusOK, s.do("DELETE", projectPath, adminTok, nil, &deleted))
	assert.Equal(t, "Project deleted", deleted["message"])
	assert.Equal(t, http.StatusNotFound, s.do("GET", projectPath, adminTok, nil, nil))
}

func TestAuthenticationErrors(t *testing.T) {
	s := newTestServer(t)
	known := token(t, "ada@example.com", "Ada")
	s.sync(known, nil)

	tests := []struct {
		name   string
		path   string
		tok    string
		status int
		kind   apperror.Kind
	}{
		{"missing token", "/api/projects", "", http.StatusUnauthorized, apperror.KindUnauthenticated},
		{"garbage token", "/api/projects", "not-a-jwt", http.StatusUnauthorized, apperror.KindUnauthenticated},
		{"unsynced user", "/api/projects", token(t, "ghost@example.com", "Ghost"), http.StatusNotFound, apperror.KindUserNotFound},
		{"ws without token", "/ws", "", http.StatusUnauthorized, apperror.KindUnauthenticated},
		{"ws without upgrade", "/ws", known, http.StatusUpgradeRequired, apperror.KindBadRequest},
		{"unknown route", "/api/nope", known, http.StatusNotFound, apperror.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body apperror.Body
			assert.Equal(t, tt.status, s.do("GET", tt.path, tt.tok, nil, &body))
			assert.Equal(t, tt.kind, body.Kind)
		})
	}
}

func TestTaskQueryValidation(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "ada@example.com", "Ada")
	s.sync(tok, nil)
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/teams", tok, map[string]string{"name": "Eng"}, nil))

	var body apperror.Body
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/tasks", tok, nil, &body))
	assert.Equal(t, apperror.CodeInvalidID, body.Code)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/tasks/mine?status=later", tok, nil, &body))
	assert.Equal(t, apperror.CodeInvalidStatus, body.Code)

	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/projects", tok, map[string]string{}, &body))
	assert.Equal(t, apperror.CodeValidation, body.Code)
}

func TestMessageHistory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	adminTok := token(t, "ada@example.com", "Ada")
	outsiderTok := token(t, "carol@example.com", "Carol")
	s.sync(adminTok, nil)
	s.sync(outsiderTok, nil)

	var created struct {
		Team models.Team `json:"team"`
		User models.User `json:"user"`
	}
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/teams", adminTok, map[string]string{"name": "Eng"}, &created))
	teamID := created.Team.ID

	var ids []uint
	for _, content := range []string{"first", "second", "third"} {
		msg, err := s.svc.Messages.Create(ctx, teamID, created.User.ID, content)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	var history []realtime.MessagePayload
	require.Equal(t, http.StatusOK, s.do("GET", fmt.Sprintf("/api/messages/%d", teamID), adminTok, nil, &history))
	require.Len(t, history, 3)
	for i, m := range history {
		assert.Equal(t, ids[i], m.ID)
		require.NotNil(t, m.Sender)
		assert.Equal(t, "Ada", m.Sender.Name)
	}

	var page []realtime.MessagePayload
	require.Equal(t, http.StatusOK, s.do("GET", fmt.Sprintf("/api/messages/%d?after=%d", teamID, ids[0]), adminTok, nil, &page))
	require.Len(t, page, 2)
	assert.Equal(t, "second", page[0].Content)

	assert.Equal(t, http.StatusNotFound, s.do("GET", fmt.Sprintf("/api/messages/%d", teamID), outsiderTok, nil, nil))
}

func TestTeamSelection(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "ada@example.com", "Ada")
	s.sync(tok, nil)

	var first, second struct {
		Team models.Team `json:"team"`
	}
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/teams", tok, map[string]string{"name": "Eng"}, &first))
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/teams", tok, map[string]string{"name": "Ops"}, &second))

	var me models.Team
	require.Equal(t, http.StatusOK, s.do("GET", "/api/teams/me", tok, nil, &me))
	assert.Equal(t, first.Team.ID, me.ID)

	var selected struct {
		User models.User `json:"user"`
	}
	require.Equal(t, http.StatusOK, s.do("PATCH", "/api/teams/select", tok, map[string]uint{"teamId": second.Team.ID}, &selected))
	require.NotNil(t, selected.User.ActiveTeamID)
	assert.Equal(t, second.Team.ID, *selected.User.ActiveTeamID)

	var owned struct {
		Teams []models.Team `json:"teams"`
	}
	require.Equal(t, http.StatusOK, s.do("GET", "/api/teams", tok, nil, &owned))
	assert.Len(t, owned.Teams, 2)

	var dup apperror.Body
	assert.Equal(t, http.StatusConflict, s.do("POST", "/api/teams", tok, map[string]string{"name": "Eng"}, &dup))
	assert.Equal(t, apperror.CodeDuplicateTeam, dup.Code)
}
