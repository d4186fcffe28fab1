package services

import (
	"context"
	"errors"
	"strings"

	"github.com/badoux/checkmail"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teamcollab/apperror"
	"teamcollab/models"
	"teamcollab/utils"
)

type TeamService struct {
	db    *gorm.DB
	users *UserService
}

func NewTeamService(db *gorm.DB, users *UserService) *TeamService {
	return &TeamService{db: db, users: users}
}

type CreateTeamInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=1000"`
}

// AddMemberInput identifies the user to add either by id or by email.
type AddMemberInput struct {
	UserID *uint  `json:"userId"`
	Email  string `json:"email" validate:"omitempty,max=254"`
	Name   string `json:"name" validate:"omitempty,max=100"`
}

// CreateTeam creates a team administered by user. The creator is written to
// the membership relation as the team admin. When the creator has no active
// team yet, the new team becomes active and the creator is promoted to ADMIN;
// a creator who already operates in a team keeps their current context.
func (s *TeamService) CreateTeam(ctx context.Context, user *models.User, in CreateTeamInput) (*models.Team, *models.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, apperror.BadRequest(apperror.CodeValidation, "name is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("admin_id = ? AND name = ?", user.ID, name).Count(&count).Error; err != nil {
		return nil, nil, apperror.Internal("failed to check team name", err)
	}
	if count > 0 {
		return nil, nil, duplicateTeam()
	}

	team := models.Team{Name: name, Description: strings.TrimSpace(in.Description), AdminID: user.ID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateTeam()
			}
			return apperror.Internal("failed to create team", err)
		}
		admin := models.TeamMember{TeamID: team.ID, UserID: user.ID, Role: models.TeamRoleAdmin}
		if err := tx.Create(&admin).Error; err != nil {
			return apperror.Internal("failed to add team admin", err)
		}
		if user.HasActiveTeam() {
			return nil
		}
		err := tx.Model(&models.User{}).
			Where("id = ? AND active_team_id IS NULL", user.ID).
			Updates(map[string]interface{}{"active_team_id": team.ID, "role": models.RoleAdmin}).Error
		if err != nil {
			return apperror.Internal("failed to activate team", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	utils.LogEvent("team_created", map[string]interface{}{"team_id": team.ID, "admin_id": user.ID})

	updated, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, nil, ambiguous("team", err)
	}
	if team.Members, err = s.Roster(ctx, &team); err != nil {
		return nil, nil, ambiguous("team", err)
	}
	return &team, updated, nil
}

func duplicateTeam() error {
	return apperror.Conflict(apperror.CodeDuplicateTeam, "Team with this name already exists for you")
}

func (s *TeamService) find(ctx context.Context, teamID uint) (*models.Team, error) {
	var team models.Team
	if err := s.db.WithContext(ctx).First(&team, teamID).Error; err != nil {
		return nil, notFoundOr(err, "team")
	}
	return &team, nil
}

// ListOwnedTeams returns the teams administered by user with their rosters.
func (s *TeamService) ListOwnedTeams(ctx context.Context, user *models.User) ([]models.Team, error) {
	teams := []models.Team{}
	if err := s.db.WithContext(ctx).Where("admin_id = ?", user.ID).Order("id").Find(&teams).Error; err != nil {
		return nil, apperror.Internal("failed to list teams", err)
	}
	for i := range teams {
		roster, err := s.Roster(ctx, &teams[i])
		if err != nil {
			return nil, err
		}
		teams[i].Members = roster
	}
	return teams, nil
}

// GetActiveTeam returns the team the user currently operates in.
func (s *TeamService) GetActiveTeam(ctx context.Context, user *models.User) (*models.Team, error) {
	if !user.HasActiveTeam() {
		return nil, apperror.New(apperror.KindNotFound, apperror.CodeNoActiveTeam, "No team assigned")
	}
	return s.find(ctx, user.ActiveTeam())
}

// SetActiveTeam switches the caller's active team. Only the team admin may
// select a team.
func (s *TeamService) SetActiveTeam(ctx context.Context, user *models.User, teamID uint) (*models.User, error) {
	team, err := s.find(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.AdminID != user.ID {
		return nil, apperror.Forbidden(apperror.CodeNotTeamAdmin, "Not allowed to select this team")
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Update("active_team_id", team.ID).Error; err != nil {
		return nil, apperror.Internal("failed to set active team", err)
	}
	updated, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, ambiguous("user", err)
	}
	return updated, nil
}

// AddUserToTeam adds an existing user (by id) or a user looked up or created
// by email to the team's member set. The insert is a set-add on the
// (team, user) unique index, so racing requests cannot both succeed.
func (s *TeamService) AddUserToTeam(ctx context.Context, caller *models.User, teamID uint, in AddMemberInput) (*models.User, error) {
	team, err := s.find(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.AdminID != caller.ID {
		return nil, apperror.NotFound("team")
	}

	var target *models.User
	switch {
	case in.UserID != nil && *in.UserID != 0:
		if target, err = s.users.FindByID(ctx, *in.UserID); err != nil {
			return nil, err
		}
	case strings.TrimSpace(in.Email) != "":
		email := NormalizeEmail(in.Email)
		if err := checkmail.ValidateFormat(email); err != nil {
			return nil, apperror.BadRequest(apperror.CodeValidation, "email must be a valid email")
		}
		if target, _, err = s.users.FindOrCreate(ctx, email, in.Name, models.RoleMember); err != nil {
			return nil, err
		}
	default:
		return nil, apperror.BadRequest(apperror.CodeValidation, "Either userId or email is required")
	}

	if target.ID == team.AdminID {
		return nil, alreadyMember()
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&models.TeamMember{TeamID: team.ID, UserID: target.ID, Role: models.TeamRoleMember})
	if res.Error != nil {
		return nil, apperror.Internal("failed to add team member", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, alreadyMember()
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND active_team_id IS NULL", target.ID).
		Update("active_team_id", team.ID).Error; err != nil {
		return nil, ambiguous("team member", err)
	}

	utils.LogEvent("team_member_added", map[string]interface{}{"team_id": team.ID, "user_id": target.ID})

	updated, err := s.users.FindByID(ctx, target.ID)
	if err != nil {
		return nil, ambiguous("team member", err)
	}
	return updated, nil
}

func alreadyMember() error {
	return apperror.Conflict(apperror.CodeAlreadyMember, "User is already a member of this team")
}

// GetTeamMembers returns the reconciled roster of teamID. Callers outside
// the roster get NOT_FOUND.
func (s *TeamService) GetTeamMembers(ctx context.Context, caller *models.User, teamID uint) ([]models.UserSummary, error) {
	team, err := s.find(ctx, teamID)
	if err != nil {
		return nil, err
	}
	roster, err := s.Roster(ctx, team)
	if err != nil {
		return nil, err
	}
	for _, m := range roster {
		if m.ID == caller.ID {
			return roster, nil
		}
	}
	return nil, apperror.NotFound("team")
}

// GetMyTeamRoster returns the roster of the caller's active team.
func (s *TeamService) GetMyTeamRoster(ctx context.Context, user *models.User) ([]models.UserSummary, error) {
	team, err := s.GetActiveTeam(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.Roster(ctx, team)
}

// Roster unions the team admin with the membership relation. The admin comes
// first and appears once; no user id repeats.
func (s *TeamService) Roster(ctx context.Context, team *models.Team) ([]models.UserSummary, error) {
	roster := []models.UserSummary{}
	seen := map[uint]bool{}

	var admin models.User
	err := s.db.WithContext(ctx).First(&admin, team.AdminID).Error
	switch {
	case err == nil:
		roster = append(roster, admin.Summary())
		seen[admin.ID] = true
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperror.Internal("failed to load team admin", err)
	}

	var members []models.User
	if err := s.db.WithContext(ctx).
		Joins("JOIN team_members ON team_members.user_id = users.id").
		Where("team_members.team_id = ?", team.ID).
		Order("team_members.joined_at, team_members.id").
		Find(&members).Error; err != nil {
		return nil, apperror.Internal("failed to load team members", err)
	}
	for _, m := range members {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		roster = append(roster, m.Summary())
	}
	return roster, nil
}

// IsMember reports whether userID is on teamID's roster.
func (s *TeamService) IsMember(ctx context.Context, teamID, userID uint) (bool, error) {
	ids, err := s.FilterMembers(ctx, teamID, []uint{userID})
	if err != nil {
		return false, err
	}
	return len(ids) == 1, nil
}

// FilterMembers keeps the ids from ids that are on teamID's roster,
// preserving their order and dropping duplicates.
func (s *TeamService) FilterMembers(ctx context.Context, teamID uint, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return []uint{}, nil
	}
	var team models.Team
	if err := s.db.WithContext(ctx).Select("id", "admin_id").First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []uint{}, nil
		}
		return nil, apperror.Internal("failed to load team", err)
	}

	var memberIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id IN ?", teamID, ids).
		Pluck("user_id", &memberIDs).Error; err != nil {
		return nil, apperror.Internal("failed to load team members", err)
	}
	allowed := map[uint]bool{team.AdminID: true}
	for _, id := range memberIDs {
		allowed[id] = true
	}

	out := []uint{}
	seen := map[uint]bool{}
	for _, id := range ids {
		if allowed[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// ListUsers returns the users an admin may pick for assignments: everyone on
// the rosters of teams the caller administers plus users with no team yet.
func (s *TeamService) ListUsers(ctx context.Context, caller *models.User) ([]models.User, error) {
	users := []models.User{}
	owned := s.db.Model(&models.Team{}).Select("id").Where("admin_id = ?", caller.ID)
	onOwnedRoster := s.db.Model(&models.TeamMember{}).Select("user_id").Where("team_id IN (?)", owned)
	anyMembership := s.db.Model(&models.TeamMember{}).Select("user_id")

	err := s.db.WithContext(ctx).
		Where("id = ?", caller.ID).
		Or("id IN (?)", onOwnedRoster).
		Or("(id NOT IN (?) AND active_team_id IS NULL)", anyMembership).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, apperror.Internal("failed to get users", err)
	}
	return users, nil
}
