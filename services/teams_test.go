package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcollab/apperror"
	"teamcollab/models"
	"teamcollab/utils"
)

func TestCreateTeamPromotesCreatorWithoutTeam(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)

	team, updated, err := s.Teams.CreateTeam(ctx, alice, CreateTeamInput{Name: "  Eng  ", Description: "engineering"})
	require.NoError(t, err)

	assert.Equal(t, "Eng", team.Name)
	assert.Equal(t, alice.ID, team.AdminID)
	assert.Equal(t, models.RoleAdmin, updated.Role)
	require.True(t, updated.HasActiveTeam())
	assert.Equal(t, team.ID, updated.ActiveTeam())
	assert.Equal(t, []uint{alice.ID}, rosterIDs(team.Members))
}

func TestCreateSecondTeamKeepsActiveTeam(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)

	eng, alice := newTeam(t, s, alice, "Eng")
	_, after, err := s.Teams.CreateTeam(ctx, alice, CreateTeamInput{Name: "Ops"})
	require.NoError(t, err)

	assert.Equal(t, eng.ID, after.ActiveTeam())
}

func TestCreateTeamRejectsDuplicateName(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleMember)

	_, alice = newTeam(t, s, alice, "Eng")

	_, _, err := s.Teams.CreateTeam(ctx, alice, CreateTeamInput{Name: "Eng"})
	requireKind(t, err, apperror.KindConflict)
	assert.Equal(t, apperror.CodeDuplicateTeam, apperror.As(err).Code)

	// Same name under another admin is fine.
	_, _, err = s.Teams.CreateTeam(ctx, bob, CreateTeamInput{Name: "Eng"})
	require.NoError(t, err)
}

func TestSetActiveTeam(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleMember)

	_, alice = newTeam(t, s, alice, "Eng")
	ops, _, err := s.Teams.CreateTeam(ctx, alice, CreateTeamInput{Name: "Ops"})
	require.NoError(t, err)

	t.Run("admin selects owned team", func(t *testing.T) {
		updated, err := s.Teams.SetActiveTeam(ctx, alice, ops.ID)
		require.NoError(t, err)
		assert.Equal(t, ops.ID, updated.ActiveTeam())
	})

	t.Run("non admin is forbidden", func(t *testing.T) {
		_, err := s.Teams.SetActiveTeam(ctx, bob, ops.ID)
		requireKind(t, err, apperror.KindForbidden)
	})

	t.Run("missing team", func(t *testing.T) {
		_, err := s.Teams.SetActiveTeam(ctx, alice, 9999)
		requireKind(t, err, apperror.KindNotFound)
	})
}

func TestGetActiveTeamWithoutTeam(t *testing.T) {
	s, db := newTestServices(t)
	carol := seedUser(t, db, "carol@example.com", models.RoleMember)

	_, err := s.Teams.GetActiveTeam(ctx, carol)
	requireKind(t, err, apperror.KindNotFound)
	assert.Equal(t, apperror.CodeNoActiveTeam, apperror.As(err).Code)
}

func TestAddUserToTeamTwiceConflicts(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleMember)
	team, alice := newTeam(t, s, alice, "Eng")

	added, err := s.Teams.AddUserToTeam(ctx, alice, team.ID, AddMemberInput{UserID: &bob.ID})
	require.NoError(t, err)
	assert.Equal(t, team.ID, added.ActiveTeam())

	before, err := s.Teams.GetTeamMembers(ctx, alice, team.ID)
	require.NoError(t, err)

	_, err = s.Teams.AddUserToTeam(ctx, alice, team.ID, AddMemberInput{UserID: &bob.ID})
	requireKind(t, err, apperror.KindConflict)
	assert.Equal(t, apperror.CodeAlreadyMember, apperror.As(err).Code)

	after, err := s.Teams.GetTeamMembers(ctx, alice, team.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestAddUserToTeamRejectsAdmin(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	team, alice := newTeam(t, s, alice, "Eng")

	_, err := s.Teams.AddUserToTeam(ctx, alice, team.ID, AddMemberInput{Email: "ALICE@example.com"})
	requireKind(t, err, apperror.KindConflict)
}

func TestAddUserToTeamByEmailCreatesMember(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	team, alice := newTeam(t, s, alice, "Eng")

	added, err := s.Teams.AddUserToTeam(ctx, alice, team.ID, AddMemberInput{Email: " New@Example.com ", Name: "Newbie"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", added.Email)
	assert.Equal(t, "Newbie", added.Name)
	assert.Equal(t, models.RoleMember, added.Role)
	assert.Equal(t, team.ID, added.ActiveTeam())
}

func TestAddUserToTeamKeepsExistingActiveTeam(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleMember)
	eng, alice := newTeam(t, s, alice, "Eng")
	bobs, bob := newTeam(t, s, bob, "Bob's")

	added, err := s.Teams.AddUserToTeam(ctx, alice, eng.ID, AddMemberInput{UserID: &bob.ID})
	require.NoError(t, err)
	assert.Equal(t, bobs.ID, added.ActiveTeam())
}

func TestAddUserToTeamValidation(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleManager)
	team, alice := newTeam(t, s, alice, "Eng")
	missing := uint(4242)

	tests := []struct {
		name   string
		caller *models.User
		teamID uint
		in     AddMemberInput
		kind   apperror.Kind
	}{
		{"neither id nor email", alice, team.ID, AddMemberInput{}, apperror.KindBadRequest},
		{"malformed email", alice, team.ID, AddMemberInput{Email: "not-an-email"}, apperror.KindBadRequest},
		{"unknown user id", alice, team.ID, AddMemberInput{UserID: &missing}, apperror.KindUserNotFound},
		{"unknown team", alice, 777, AddMemberInput{Email: "x@example.com"}, apperror.KindNotFound},
		{"caller does not own team", bob, team.ID, AddMemberInput{Email: "x@example.com"}, apperror.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Teams.AddUserToTeam(ctx, tt.caller, tt.teamID, tt.in)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestConcurrentAddUserSameEmailCreatesOneUser(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	team, alice := newTeam(t, s, alice, "Eng")

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Teams.AddUserToTeam(ctx, alice, team.ID, AddMemberInput{Email: "race@example.com"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "race@example.com").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	roster, err := s.Teams.GetTeamMembers(ctx, alice, team.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 2)
}

func TestRosterReconcilesAdmin(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleMember)
	carol := seedUser(t, db, "carol@example.com", models.RoleMember)

	// A team written without the admin row, as older data may be.
	legacy := models.Team{Name: "Legacy", AdminID: alice.ID}
	require.NoError(t, db.Create(&legacy).Error)
	require.NoError(t, db.Create(&models.TeamMember{TeamID: legacy.ID, UserID: bob.ID, Role: models.TeamRoleMember}).Error)

	roster, err := s.Teams.Roster(ctx, &legacy)
	require.NoError(t, err)
	assert.Equal(t, []uint{alice.ID, bob.ID}, rosterIDs(roster))

	// And one where the admin also appears in the relation.
	team, alice := newTeam(t, s, alice, "Eng")
	_, err = s.Teams.AddUserToTeam(ctx, alice, team.ID, AddMemberInput{UserID: &carol.ID})
	require.NoError(t, err)

	roster, err = s.Teams.GetTeamMembers(ctx, alice, team.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{alice.ID, carol.ID}, rosterIDs(roster))
}

func TestGetTeamMembersHidesForeignTeams(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	mallory := seedUser(t, db, "mallory@example.com", models.RoleAdmin)
	team, _ := newTeam(t, s, alice, "Eng")

	_, err := s.Teams.GetTeamMembers(ctx, mallory, team.ID)
	requireKind(t, err, apperror.KindNotFound)
}

func TestListOwnedTeams(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleMember)
	_, alice = newTeam(t, s, alice, "Eng")
	_, _ = newTeam(t, s, bob, "Other")
	_, _, err := s.Teams.CreateTeam(ctx, alice, CreateTeamInput{Name: "Ops"})
	require.NoError(t, err)

	teams, err := s.Teams.ListOwnedTeams(ctx, alice)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "Eng", teams[0].Name)
	assert.Equal(t, "Ops", teams[1].Name)
	assert.Equal(t, []uint{alice.ID}, rosterIDs(teams[0].Members))
}

func TestListUsersIsScopedToOwnedRosters(t *testing.T) {
	s, db := newTestServices(t)
	alice := seedUser(t, db, "alice@example.com", models.RoleMember)
	bob := seedUser(t, db, "bob@example.com", models.RoleMember)
	member := seedUser(t, db, "member@example.com", models.RoleMember)
	outsider := seedUser(t, db, "outsider@example.com", models.RoleMember)
	free := seedUser(t, db, "free@example.com", models.RoleMember)

	eng, alice := newTeam(t, s, alice, "Eng")
	other, bob := newTeam(t, s, bob, "Other")
	_, err := s.Teams.AddUserToTeam(ctx, alice, eng.ID, AddMemberInput{UserID: &member.ID})
	require.NoError(t, err)
	_, err = s.Teams.AddUserToTeam(ctx, bob, other.ID, AddMemberInput{UserID: &outsider.ID})
	require.NoError(t, err)

	users, err := s.Teams.ListUsers(ctx, alice)
	require.NoError(t, err)

	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []uint{alice.ID, member.ID, free.ID}, ids)
}

func TestSyncCreatesAndUpdatesUser(t *testing.T) {
	s, db := newTestServices(t)

	created, err := s.Users.Sync(ctx, "Dana@Example.com", "Dana", SyncInput{Role: utils.Some("superuser")})
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", created.Email)
	assert.Equal(t, "Dana", created.Name)
	assert.Equal(t, models.RoleMember, created.Role)
	assert.False(t, created.HasActiveTeam())

	t.Run("absent fields stay", func(t *testing.T) {
		same, err := s.Users.Sync(ctx, "dana@example.com", "Other", SyncInput{Name: utils.Null[string]()})
		require.NoError(t, err)
		assert.Equal(t, "Dana", same.Name)
		assert.Equal(t, models.RoleMember, same.Role)
	})

	t.Run("present fields overwrite", func(t *testing.T) {
		updated, err := s.Users.Sync(ctx, "dana@example.com", "", SyncInput{
			Name: utils.Some("Dana S."),
			Role: utils.Some("manager"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Dana S.", updated.Name)
		assert.Equal(t, models.RoleManager, updated.Role)
	})

	t.Run("invalid role on update", func(t *testing.T) {
		_, err := s.Users.Sync(ctx, "dana@example.com", "", SyncInput{Role: utils.Some("root")})
		requireKind(t, err, apperror.KindBadRequest)
	})

	t.Run("team id needs membership", func(t *testing.T) {
		owner := seedUser(t, db, "owner@example.com", models.RoleMember)
		team, owner := newTeam(t, s, owner, "Eng")

		ignored, err := s.Users.Sync(ctx, "dana@example.com", "", SyncInput{TeamID: utils.Some(team.ID)})
		require.NoError(t, err)
		assert.False(t, ignored.HasActiveTeam())

		_, err = s.Teams.AddUserToTeam(ctx, owner, team.ID, AddMemberInput{Email: "dana@example.com"})
		require.NoError(t, err)
		other, _, err := s.Teams.CreateTeam(ctx, owner, CreateTeamInput{Name: "Ops"})
		require.NoError(t, err)
		_, err = s.Teams.AddUserToTeam(ctx, owner, other.ID, AddMemberInput{Email: "dana@example.com"})
		require.NoError(t, err)

		switched, err := s.Users.Sync(ctx, "dana@example.com", "", SyncInput{TeamID: utils.Some(other.ID)})
		require.NoError(t, err)
		assert.Equal(t, other.ID, switched.ActiveTeam())
	})
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	s, db := newTestServices(t)

	var wg sync.WaitGroup
	ids := make([]uint, 8)
	created := make([]bool, len(ids))
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, isNew, err := s.Users.FindOrCreate(ctx, "first@example.com", "", models.RoleMember)
			if assert.NoError(t, err) {
				ids[i] = u.ID
				created[i] = isNew
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, countTrue(created), "exactly one caller inserts the row")
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	u, err := s.Users.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "first", u.Name)
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// Two service instances share nothing in memory, like two processes; the
// unique email index alone has to keep the user single.
func TestFindOrCreateAcrossInstances(t *testing.T) {
	s, db := newTestServices(t)
	instances := []*Services{s, New(db)}

	var wg sync.WaitGroup
	ids := make([]uint, 8)
	created := make([]bool, len(ids))
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, isNew, err := instances[i%2].Users.FindOrCreate(ctx, "shared@example.com", "", models.RoleMember)
			if assert.NoError(t, err) {
				ids[i] = u.ID
				created[i] = isNew
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, countTrue(created))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "shared@example.com").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFindOrCreateOutlivesCallerCancellation(t *testing.T) {
	s, _ := newTestServices(t)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	u, created, err := s.Users.FindOrCreate(cancelled, "late@example.com", "Late", models.RoleManager)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoleManager, u.Role)
}

func TestSyncAppliesFieldsForExistingUser(t *testing.T) {
	s, _ := newTestServices(t)

	_, created, err := s.Users.FindOrCreate(ctx, "eve@example.com", "Eve", models.RoleMember)
	require.NoError(t, err)
	require.True(t, created)

	u, err := s.Users.Sync(ctx, "eve@example.com", "", SyncInput{
		Name: utils.Some("Eve Adams"),
		Role: utils.Some("MANAGER"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Eve Adams", u.Name)
	assert.Equal(t, models.RoleManager, u.Role)
}
