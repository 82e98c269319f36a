package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"teamtasks/internal/model"
	"teamtasks/internal/recurrence"
)

// ReminderService builds the daily HTML summary for a group: each list's
// progress bucket plus the tasks occurring today.
type ReminderService struct {
	tasks *TaskService
}

func NewReminderService(tasks *TaskService) *ReminderService {
	return &ReminderService{tasks: tasks}
}

var statusIcons = map[model.ListStatus]string{
	model.StatusNotStarted: "⬜",
	model.StatusInProgress: "🔵",
	model.StatusDone:       "✅",
}

var statusLabels = map[model.ListStatus]string{
	model.StatusNotStarted: "not started",
	model.StatusInProgress: "in progress",
	model.StatusDone:       "done",
}

// DailySummary renders the group's state for the given day.
func (s *ReminderService) DailySummary(ctx context.Context, groupID int64, now time.Time) (string, error) {
	lists, err := s.tasks.TaskLists(ctx, groupID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("📋 <b>Daily report</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	if len(lists) == 0 {
		b.WriteString("— no task lists yet\n")
		return strings.TrimSpace(b.String()), nil
	}

	for _, list := range lists {
		status := list.Status()
		done, total := list.Progress()
		b.WriteString(fmt.Sprintf("%s <b>%s</b> · %d/%d %s\n",
			statusIcons[status], escape(list.Name), done, total, statusLabels[status]))

		due := dueToday(list.Tasks, now)
		overdue := overdueTasks(list.Tasks, now)
		if len(due) == 0 && len(overdue) == 0 {
			b.WriteString("   — nothing due today\n")
			continue
		}
		for _, task := range due {
			b.WriteString(formatDueTask(task, false))
		}
		for _, task := range overdue {
			b.WriteString(formatDueTask(task, true))
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// dueToday keeps tasks whose recurrence rule produces an occurrence on the
// given day. Tasks with a malformed rule are skipped rather than guessed at.
func dueToday(tasks []model.Task, now time.Time) []model.Task {
	var due []model.Task
	for _, task := range tasks {
		rule, err := task.Rule()
		if err != nil {
			continue
		}
		if rule.IsOccurrence(now) {
			due = append(due, task)
		}
	}
	return due
}

// overdueTasks keeps incomplete one-time tasks whose only occurrence has
// already passed. Repeating rules are never overdue; they occur again.
func overdueTasks(tasks []model.Task, now time.Time) []model.Task {
	var overdue []model.Task
	for _, task := range tasks {
		if task.Done() || task.Frequency != recurrence.Once {
			continue
		}
		rule, err := task.Rule()
		if err != nil {
			continue
		}
		if _, ok := rule.NextOccurrence(now); !ok {
			overdue = append(overdue, task)
		}
	}
	return overdue
}

func formatDueTask(task model.Task, overdue bool) string {
	var b strings.Builder
	icon := "🔲"
	if task.Done() {
		icon = "☑️"
	}
	b.WriteString(fmt.Sprintf("   %s %s", icon, escape(strings.TrimSpace(task.Name))))
	if overdue {
		b.WriteString(fmt.Sprintf(" ⚠️ overdue since %s", task.Date.Format("2006-01-02")))
	}
	if task.CommentCount > 0 {
		b.WriteString(fmt.Sprintf(" 💬%d", task.CommentCount))
	}
	b.WriteByte('\n')
	return b.String()
}

func escape(s string) string {
	return html.EscapeString(s)
}
