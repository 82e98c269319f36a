package model

import (
	"time"

	"teamtasks/internal/recurrence"
)

// Task is the atomic unit of work, owned by exactly one task list.
type Task struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	ListID      int64      `json:"taskListId" gorm:"index"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	DoneAt      *time.Time `json:"doneAt"`

	Frequency recurrence.Frequency `json:"frequency"`
	WeekDays  []int                `json:"weekDays,omitempty" gorm:"serializer:json"`
	MonthDay  int                  `json:"monthDay,omitempty"`

	// RecurringID links a materialized occurrence back to its recurrence
	// template. It is a real column; nothing is ever parsed out of
	// Description.
	RecurringID *int64 `json:"recurringId,omitempty" gorm:"index"`

	// CommentCount mirrors the live comment collection size. It is only
	// trustworthy after a comment mutation's invalidation settles.
	CommentCount int `json:"commentCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Done reports whether the task is complete.
func (t Task) Done() bool {
	return t.DoneAt != nil
}

// Rule builds the task's recurrence rule from its stored fields.
func (t Task) Rule() (recurrence.Rule, error) {
	days := make([]time.Weekday, 0, len(t.WeekDays))
	for _, d := range t.WeekDays {
		days = append(days, time.Weekday(d))
	}
	return recurrence.NewRule(t.Frequency, t.Date, days, t.MonthDay)
}
