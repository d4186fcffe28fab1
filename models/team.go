package models

import "time"

// Team represents a collaboration space owned by one admin.
type Team struct {
	ID          uint   `gorm:"primaryKey" json:"_id"`
	Name        string `gorm:"not null;uniqueIndex:idx_teams_admin_name" json:"name"`
	Description string `json:"description"`
	AdminID     uint   `gorm:"not null;index;uniqueIndex:idx_teams_admin_name" json:"adminId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Populated on read, never persisted through the association.
	Members []UserSummary `gorm:"-" json:"members,omitempty"`
}

// TeamRole is the role a user holds inside a single team.
type TeamRole string

const (
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
)

// TeamMember is the membership relation. The team admin always has a row
// with TeamRoleAdmin written at team creation.
type TeamMember struct {
	ID       uint      `gorm:"primaryKey" json:"_id"`
	TeamID   uint      `gorm:"not null;uniqueIndex:idx_team_members_team_user" json:"teamId"`
	UserID   uint      `gorm:"not null;index;uniqueIndex:idx_team_members_team_user" json:"userId"`
	Role     TeamRole  `gorm:"type:varchar(16);not null;default:'member'" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joinedAt"`

	// Relations
	Team Team `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	User User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
