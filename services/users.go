package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teamcollab/apperror"
	"teamcollab/models"
	"teamcollab/utils"
)

type UserService struct {
	db    *gorm.DB
	teams *TeamService
	first singleflight.Group
	calls atomic.Uint64
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// NormalizeEmail lower-cases and trims an address so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.UserNotFound()
		}
		return nil, apperror.Internal("failed to load user", err)
	}
	return &user, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.UserNotFound()
		}
		return nil, apperror.Internal("failed to load user", err)
	}
	return &user, nil
}

// FindOrCreate returns the user with email, creating it with name and role
// when absent. Concurrent first calls for one address produce a single row:
// callers in this process share one attempt, and across processes the unique
// email index turns the losing insert into a no-op followed by a re-read.
// created is true only for the caller whose name and role were inserted; the
// shared attempt is not cut short by that caller's cancellation.
func (s *UserService) FindOrCreate(ctx context.Context, email, name string, role models.Role) (*models.User, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false, apperror.BadRequest(apperror.CodeValidation, "email is required")
	}

	type result struct {
		user    models.User
		creator uint64
	}
	call := s.calls.Add(1)
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.first.Do(email, func() (interface{}, error) {
		ctx := shared
		if existing, err := s.FindByEmail(ctx, email); err == nil {
			return result{user: *existing}, nil
		} else if !apperror.Is(err, apperror.KindUserNotFound) {
			return nil, err
		}

		if strings.TrimSpace(name) == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}
		user := models.User{Email: email, Name: strings.TrimSpace(name), Role: role}
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
			Create(&user)
		if res.Error != nil {
			return nil, apperror.Internal("failed to create user", res.Error)
		}
		if res.RowsAffected == 1 && user.ID != 0 {
			utils.LogEvent("user_created", map[string]interface{}{"user_id": user.ID, "role": user.Role})
			return result{user: user, creator: call}, nil
		}

		// Lost the race against another writer.
		winner, err := s.FindByEmail(ctx, email)
		if err != nil {
			return nil, apperror.Wrap(err, "failed to read back user")
		}
		return result{user: *winner}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	user := r.user
	return &user, r.creator == call, nil
}

// SyncInput carries the optional profile fields of POST /auth/sync.
type SyncInput struct {
	Name   utils.Optional[string] `json:"name"`
	Role   utils.Optional[string] `json:"role"`
	TeamID utils.Optional[uint]   `json:"teamId"`
}

// Sync finds or creates the local user for a verified identity and applies
// the fields present in in. On creation an absent or unknown role becomes
// MEMBER; on update only present, non-null fields are written. A team id is
// only applied when the user is on that team's roster.
func (s *UserService) Sync(ctx context.Context, email, displayName string, in SyncInput) (*models.User, error) {
	name := displayName
	if in.Name.Set && in.Name.Value != nil && strings.TrimSpace(*in.Name.Value) != "" {
		name = *in.Name.Value
	}
	role := models.RoleMember
	if in.Role.Set && in.Role.Value != nil {
		if r, ok := models.ParseRole(*in.Role.Value); ok {
			role = r
		}
	}

	user, created, err := s.FindOrCreate(ctx, email, name, role)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if !created {
		if in.Name.Set && in.Name.Value != nil && strings.TrimSpace(*in.Name.Value) != "" {
			updates["name"] = strings.TrimSpace(*in.Name.Value)
		}
		if in.Role.Set && in.Role.Value != nil {
			r, ok := models.ParseRole(*in.Role.Value)
			if !ok {
				return nil, apperror.BadRequest(apperror.CodeValidation, "role must be one of [ADMIN MANAGER MEMBER]")
			}
			updates["role"] = r
		}
	}
	if in.TeamID.Set && in.TeamID.Value != nil {
		member, err := s.teams.IsMember(ctx, *in.TeamID.Value, user.ID)
		if err != nil {
			return nil, err
		}
		if member {
			updates["active_team_id"] = *in.TeamID.Value
		}
	}

	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, apperror.Internal("failed to update user", err)
	}
	reloaded, err := s.FindByID(ctx, user.ID)
	if err != nil {
		return nil, ambiguous("user", err)
	}
	return reloaded, nil
}
