package models

import "time"

// Project groups tasks inside a team.
type Project struct {
	ID          uint   `gorm:"primaryKey" json:"_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	TeamID      uint   `gorm:"not null;index" json:"teamId"`

	AssignedUsers []User `gorm:"many2many:project_assignments;constraint:OnDelete:CASCADE" json:"assignedUsers"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
