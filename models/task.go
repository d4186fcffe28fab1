package models

import "time"

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
)

// ParseTaskStatus validates a kanban column name.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch st := TaskStatus(s); st {
	case TaskTodo, TaskInProgress, TaskDone:
		return st, true
	}
	return "", false
}

// Task is a kanban card that belongs to a project.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `gorm:"type:varchar(16);not null;default:'todo';index" json:"status"`
	ProjectID   uint       `gorm:"not null;index" json:"projectId"`
	AssigneeID  *uint      `gorm:"index" json:"assignedToId"`
	CreatedByID *uint      `json:"createdBy"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relations
	Project  *Project `gorm:"constraint:OnDelete:CASCADE" json:"project,omitempty"`
	Assignee *User    `gorm:"foreignKey:AssigneeID;constraint:OnDelete:SET NULL" json:"assignedTo,omitempty"`
}
