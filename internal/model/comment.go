package model

import "time"

// Comment is attached to exactly one task. Writer is a snapshot taken at
// creation; it is not re-resolved against the user directory.
type Comment struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	TaskID    int64     `json:"taskId" gorm:"index"`
	Content   string    `json:"content"`
	Writer    User      `json:"writer" gorm:"embedded;embeddedPrefix:writer_"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
