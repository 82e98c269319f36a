package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"teamtasks/internal/api"
	"teamtasks/internal/apperr"
	"teamtasks/internal/cache"
	"teamtasks/internal/model"
	"teamtasks/internal/recurrence"
)

// TaskAPI is the backend surface the task service needs.
type TaskAPI interface {
	TaskLists(ctx context.Context, groupID int64) ([]model.TaskList, error)
	TaskList(ctx context.Context, groupID, listID int64) (*model.TaskList, error)
	Tasks(ctx context.Context, groupID, listID int64, date time.Time) ([]model.Task, error)
	Task(ctx context.Context, groupID, listID, taskID int64) (*model.Task, error)
	CreateTask(ctx context.Context, groupID, listID int64, req api.CreateTaskRequest) (*model.Task, error)
	SetTaskDone(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error)
	DeleteTask(ctx context.Context, groupID, listID, taskID int64) error
}

// Cache keys. Collection views keyed by query parameters share a prefix so
// one mutation invalidates every dated variant of a list's tasks.
func groupListsKey(groupID int64) string {
	return fmt.Sprintf("group:%d:lists", groupID)
}

func groupPrefix(groupID int64) string {
	return fmt.Sprintf("group:%d:", groupID)
}

func listKey(groupID, listID int64) string {
	return fmt.Sprintf("group:%d:list:%d", groupID, listID)
}

func listTasksPrefix(groupID, listID int64) string {
	return fmt.Sprintf("group:%d:list:%d:tasks:", groupID, listID)
}

func listTasksKey(groupID, listID int64, date time.Time) string {
	return listTasksPrefix(groupID, listID) + date.Format("2006-01-02")
}

func taskKey(taskID int64) string {
	return fmt.Sprintf("task:%d", taskID)
}

// TaskService reads task data through the shared cache and runs the
// completion-toggle protocol: writes go to the backend first, and on success
// every read view derived from the task's list is invalidated rather than
// patched, because list status and counters are derived quantities.
type TaskService struct {
	api   TaskAPI
	store *cache.Store

	mu        sync.Mutex
	toggleSeq map[int64]uint64
}

func NewTaskService(api TaskAPI, store *cache.Store) *TaskService {
	return &TaskService{
		api:       api,
		store:     store,
		toggleSeq: make(map[int64]uint64),
	}
}

// TaskLists returns the group's lists, cached until invalidated.
func (s *TaskService) TaskLists(ctx context.Context, groupID int64) ([]model.TaskList, error) {
	key := groupListsKey(groupID)
	if v, ok := s.store.Get(key); ok {
		return v.([]model.TaskList), nil
	}
	lists, err := s.api.TaskLists(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, lists)
	return lists, nil
}

// TaskList returns one list with its tasks, cached until invalidated.
func (s *TaskService) TaskList(ctx context.Context, groupID, listID int64) (*model.TaskList, error) {
	key := listKey(groupID, listID)
	if v, ok := s.store.Get(key); ok {
		return v.(*model.TaskList), nil
	}
	list, err := s.api.TaskList(ctx, groupID, listID)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, list)
	return list, nil
}

// Tasks returns the list's tasks occurring on date, cached per date.
func (s *TaskService) Tasks(ctx context.Context, groupID, listID int64, date time.Time) ([]model.Task, error) {
	key := listTasksKey(groupID, listID, date)
	if v, ok := s.store.Get(key); ok {
		return v.([]model.Task), nil
	}
	tasks, err := s.api.Tasks(ctx, groupID, listID, date)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, tasks)
	return tasks, nil
}

// Task returns one task's detail view, cached until invalidated.
func (s *TaskService) Task(ctx context.Context, groupID, listID, taskID int64) (*model.Task, error) {
	key := taskKey(taskID)
	if v, ok := s.store.Get(key); ok {
		return v.(*model.Task), nil
	}
	task, err := s.api.Task(ctx, groupID, listID, taskID)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, task)
	return task, nil
}

// TaskInput is what a caller supplies to create a task.
type TaskInput struct {
	Name        string
	Description string
	Date        time.Time
	Frequency   recurrence.Frequency
	WeekDays    []time.Weekday
	MonthDay    int
}

// CreateTask validates the input locally, creates the task, and invalidates
// the list's read views. Validation failures never reach the backend.
func (s *TaskService) CreateTask(ctx context.Context, groupID, listID int64, input TaskInput) (*model.Task, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, &apperr.ValidationError{Field: "name", Reason: "title is required"}
	}
	if _, err := recurrence.NewRule(input.Frequency, input.Date, input.WeekDays, input.MonthDay); err != nil {
		return nil, err
	}

	req := api.CreateTaskRequest{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Date:        input.Date,
		Frequency:   string(input.Frequency),
		MonthDay:    input.MonthDay,
	}
	for _, d := range input.WeekDays {
		req.WeekDays = append(req.WeekDays, int(d))
	}

	task, err := s.api.CreateTask(ctx, groupID, listID, req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.invalidateListViews(groupID, listID, task.ID)
	return task, nil
}

// SetDone flips the task's completion state. The new doneAt is assigned by
// the backend; nothing is applied optimistically. When several toggles for
// the same task are in flight, only the most recently initiated one gets to
// invalidate, so views converge on the last user intent rather than on
// whichever response arrived last.
func (s *TaskService) SetDone(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error) {
	s.mu.Lock()
	s.toggleSeq[taskID]++
	seq := s.toggleSeq[taskID]
	s.mu.Unlock()

	task, err := s.api.SetTaskDone(ctx, groupID, listID, taskID, done)

	s.mu.Lock()
	superseded := s.toggleSeq[taskID] != seq
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("toggle task %d: %w", taskID, err)
	}
	if superseded {
		// A newer toggle settles the views; this response must not.
		return task, nil
	}

	s.invalidateListViews(groupID, listID, taskID)
	return task, nil
}

// DeleteTask removes the task and invalidates the list's read views.
func (s *TaskService) DeleteTask(ctx context.Context, groupID, listID, taskID int64) error {
	if err := s.api.DeleteTask(ctx, groupID, listID, taskID); err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}
	s.invalidateListViews(groupID, listID, taskID)
	return nil
}

// RefreshGroup stales every cached view of the group, so the next reads
// refetch. Other clients write to the same backend; a periodic refresh
// bounds how stale this client's views can get between interactions.
func (s *TaskService) RefreshGroup(groupID int64) {
	s.store.InvalidatePrefix(groupPrefix(groupID))
}

// WatchGroup re-warms the group's list-of-lists whenever its key is
// invalidated, so the next render hits a fresh cache instead of paying the
// fetch. Blocks until ctx is done.
func (s *TaskService) WatchGroup(ctx context.Context, groupID int64) {
	key := groupListsKey(groupID)
	ch := s.store.Watch(key)
	defer s.store.Unwatch(key, ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if _, err := s.TaskLists(ctx, groupID); err != nil {
				log.Printf("warm group %d lists: %v", groupID, err)
			}
		}
	}
}

// invalidateListViews stales everything derived from a task's list: the
// task detail, every dated task collection of the list, the list itself,
// and the group's list-of-lists, whose status buckets may have changed.
func (s *TaskService) invalidateListViews(groupID, listID, taskID int64) {
	s.store.Invalidate(taskKey(taskID), listKey(groupID, listID), groupListsKey(groupID))
	s.store.InvalidatePrefix(listTasksPrefix(groupID, listID))
}
