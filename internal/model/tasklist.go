package model

import "time"

// ListStatus is the derived lifecycle bucket of a task list. It is never
// stored; views recompute it from the tasks they hold.
type ListStatus string

const (
	StatusNotStarted ListStatus = "NOT_STARTED"
	StatusInProgress ListStatus = "IN_PROGRESS"
	StatusDone       ListStatus = "DONE"
)

// TaskList groups tasks inside a group. Task order is display order only.
type TaskList struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	GroupID      int64     `json:"groupId" gorm:"index"`
	Name         string    `json:"name"`
	DisplayIndex int       `json:"displayIndex"`
	Tasks        []Task    `json:"tasks" gorm:"foreignKey:ListID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Status classifies the list's aggregate progress. The partition is total
// and mutually exclusive; an empty list never counts as done.
func (l TaskList) Status() ListStatus {
	done, total := l.Progress()
	switch {
	case total > 0 && done == total:
		return StatusDone
	case done > 0:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// Progress returns completed and total task counts.
func (l TaskList) Progress() (done, total int) {
	for _, t := range l.Tasks {
		total++
		if t.Done() {
			done++
		}
	}
	return done, total
}
