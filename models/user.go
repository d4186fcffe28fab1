package models

import (
	"strings"
	"time"
)

// Role is the workspace-wide role of a user.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
)

// ParseRole accepts a role name in any case. Unknown names report false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleMember:
		return r, true
	}
	return "", false
}

// User is the local record of an externally verified identity.
type User struct {
	ID uint `gorm:"primaryKey" json:"_id"`

	// Identity
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `json:"name"`

	// Authorization
	Role         Role  `gorm:"type:varchar(16);not null;default:'MEMBER'" json:"role"`
	ActiveTeamID *uint `gorm:"index" json:"teamId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasActiveTeam reports whether the user currently operates inside a team.
func (u *User) HasActiveTeam() bool {
	return u.ActiveTeamID != nil && *u.ActiveTeamID != 0
}

// ActiveTeam returns the active team id, or 0 when none is selected.
func (u *User) ActiveTeam() uint {
	if !u.HasActiveTeam() {
		return 0
	}
	return *u.ActiveTeamID
}

// UserSummary is the populated form of a user embedded in other resources.
type UserSummary struct {
	ID    uint   `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
