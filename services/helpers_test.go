package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"teamcollab/apperror"
	"teamcollab/config"
	"teamcollab/models"
)

var ctx = context.Background()

func newTestServices(t *testing.T) (*Services, *gorm.DB) {
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
	return New(db), db
}

func seedUser(t *testing.T, db *gorm.DB, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: email[:1], Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

// reload returns the stored version of u.
func reload(t *testing.T, s *Services, u *models.User) *models.User {
	t.Helper()
	fresh, err := s.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	return fresh
}

// newTeam creates a team owned by admin and returns it with the admin reloaded.
func newTeam(t *testing.T, s *Services, admin *models.User, name string) (*models.Team, *models.User) {
	t.Helper()
	team, updated, err := s.Teams.CreateTeam(ctx, admin, CreateTeamInput{Name: name})
	require.NoError(t, err)
	return team, updated
}

func requireKind(t *testing.T, err error, kind apperror.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperror.KindOf(err), "unexpected error: %v", err)
}

func rosterIDs(members []models.UserSummary) []uint {
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
