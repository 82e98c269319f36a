package service

import (
	"context"
	"testing"
	"time"

	"teamtasks/internal/api"
	"teamtasks/internal/apperr"
	"teamtasks/internal/cache"
	"teamtasks/internal/model"
	"teamtasks/internal/recurrence"
)

type taskAPIMock struct {
	taskListsFn   func(ctx context.Context, groupID int64) ([]model.TaskList, error)
	taskListFn    func(ctx context.Context, groupID, listID int64) (*model.TaskList, error)
	tasksFn       func(ctx context.Context, groupID, listID int64, date time.Time) ([]model.Task, error)
	taskFn        func(ctx context.Context, groupID, listID, taskID int64) (*model.Task, error)
	createTaskFn  func(ctx context.Context, groupID, listID int64, req api.CreateTaskRequest) (*model.Task, error)
	setTaskDoneFn func(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error)
	deleteTaskFn  func(ctx context.Context, groupID, listID, taskID int64) error
}

func (m *taskAPIMock) TaskLists(ctx context.Context, groupID int64) ([]model.TaskList, error) {
	return m.taskListsFn(ctx, groupID)
}

func (m *taskAPIMock) TaskList(ctx context.Context, groupID, listID int64) (*model.TaskList, error) {
	return m.taskListFn(ctx, groupID, listID)
}

func (m *taskAPIMock) Tasks(ctx context.Context, groupID, listID int64, date time.Time) ([]model.Task, error) {
	return m.tasksFn(ctx, groupID, listID, date)
}

func (m *taskAPIMock) Task(ctx context.Context, groupID, listID, taskID int64) (*model.Task, error) {
	return m.taskFn(ctx, groupID, listID, taskID)
}

func (m *taskAPIMock) CreateTask(ctx context.Context, groupID, listID int64, req api.CreateTaskRequest) (*model.Task, error) {
	return m.createTaskFn(ctx, groupID, listID, req)
}

func (m *taskAPIMock) SetTaskDone(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error) {
	return m.setTaskDoneFn(ctx, groupID, listID, taskID, done)
}

func (m *taskAPIMock) DeleteTask(ctx context.Context, groupID, listID, taskID int64) error {
	return m.deleteTaskFn(ctx, groupID, listID, taskID)
}

func TestTaskListsServedFromCacheUntilInvalidated(t *testing.T) {
	calls := 0
	mock := &taskAPIMock{
		taskListsFn: func(ctx context.Context, groupID int64) ([]model.TaskList, error) {
			calls++
			return []model.TaskList{{ID: 1, Name: "Groceries"}}, nil
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		lists, err := svc.TaskLists(ctx, 7)
		if err != nil {
			t.Fatalf("TaskLists: %v", err)
		}
		if len(lists) != 1 || lists[0].Name != "Groceries" {
			t.Fatalf("unexpected lists: %+v", lists)
		}
	}
	if calls != 1 {
		t.Errorf("backend calls = %d, want 1", calls)
	}

	store.Invalidate(groupListsKey(7))
	if _, err := svc.TaskLists(ctx, 7); err != nil {
		t.Fatalf("TaskLists after invalidation: %v", err)
	}
	if calls != 2 {
		t.Errorf("backend calls after invalidation = %d, want 2", calls)
	}
}

func TestSetDoneInvalidatesEveryDerivedView(t *testing.T) {
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	var listCalls, tasksCalls int
	mock := &taskAPIMock{
		taskListsFn: func(ctx context.Context, groupID int64) ([]model.TaskList, error) {
			return []model.TaskList{{ID: 2}}, nil
		},
		taskListFn: func(ctx context.Context, groupID, listID int64) (*model.TaskList, error) {
			listCalls++
			return &model.TaskList{ID: listID}, nil
		},
		tasksFn: func(ctx context.Context, groupID, listID int64, d time.Time) ([]model.Task, error) {
			tasksCalls++
			return []model.Task{{ID: 10, ListID: listID}}, nil
		},
		setTaskDoneFn: func(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error) {
			now := time.Now()
			return &model.Task{ID: taskID, ListID: listID, DoneAt: &now}, nil
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx := context.Background()

	// Warm every view the toggle must stale.
	if _, err := svc.TaskLists(ctx, 1); err != nil {
		t.Fatalf("TaskLists: %v", err)
	}
	if _, err := svc.TaskList(ctx, 1, 2); err != nil {
		t.Fatalf("TaskList: %v", err)
	}
	if _, err := svc.Tasks(ctx, 1, 2, date); err != nil {
		t.Fatalf("Tasks: %v", err)
	}

	task, err := svc.SetDone(ctx, 1, 2, 10, true)
	if err != nil {
		t.Fatalf("SetDone: %v", err)
	}
	if !task.Done() {
		t.Error("returned task should be done")
	}

	// Cached views must be gone: the next reads go back to the backend.
	if _, err := svc.TaskList(ctx, 1, 2); err != nil {
		t.Fatalf("TaskList refetch: %v", err)
	}
	if listCalls != 2 {
		t.Errorf("list backend calls = %d, want 2", listCalls)
	}
	if _, err := svc.Tasks(ctx, 1, 2, date); err != nil {
		t.Fatalf("Tasks refetch: %v", err)
	}
	if tasksCalls != 2 {
		t.Errorf("tasks backend calls = %d, want 2", tasksCalls)
	}
	if _, ok := store.Get(groupListsKey(1)); ok {
		t.Error("group lists view survived the toggle")
	}
}

func TestSetDoneFailureLeavesCacheUntouched(t *testing.T) {
	mock := &taskAPIMock{
		taskListFn: func(ctx context.Context, groupID, listID int64) (*model.TaskList, error) {
			return &model.TaskList{ID: listID, Name: "Chores"}, nil
		},
		setTaskDoneFn: func(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error) {
			return nil, &apperr.NetworkError{Err: context.DeadlineExceeded}
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx := context.Background()

	if _, err := svc.TaskList(ctx, 1, 2); err != nil {
		t.Fatalf("TaskList: %v", err)
	}
	before := store.Version(listKey(1, 2))

	if _, err := svc.SetDone(ctx, 1, 2, 10, true); !apperr.IsNetwork(err) {
		t.Fatalf("SetDone err = %v, want network error", err)
	}
	if got := store.Version(listKey(1, 2)); got != before {
		t.Errorf("list version changed on failed toggle: %d -> %d", before, got)
	}
	if _, ok := store.Get(listKey(1, 2)); !ok {
		t.Error("cached list was dropped by a failed toggle")
	}
}

func TestSupersededToggleDoesNotSettleViews(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	mock := &taskAPIMock{
		setTaskDoneFn: func(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error) {
			if !done {
				// First toggle: park until the newer one has settled.
				close(started)
				<-release
			}
			return &model.Task{ID: taskID, ListID: listID}, nil
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.SetDone(ctx, 1, 2, 10, false)
		firstDone <- err
	}()
	<-started

	if _, err := svc.SetDone(ctx, 1, 2, 10, true); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	after := store.Version(taskKey(10))

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first toggle: %v", err)
	}

	// The stale response must not invalidate again: the newest toggle has
	// already settled the views.
	if got := store.Version(taskKey(10)); got != after {
		t.Errorf("task version bumped by superseded toggle: %d -> %d", after, got)
	}
}

func TestDeleteTaskInvalidatesEveryDerivedView(t *testing.T) {
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	fail := true
	mock := &taskAPIMock{
		taskListsFn: func(ctx context.Context, groupID int64) ([]model.TaskList, error) {
			return []model.TaskList{{ID: 2}}, nil
		},
		taskListFn: func(ctx context.Context, groupID, listID int64) (*model.TaskList, error) {
			return &model.TaskList{ID: listID}, nil
		},
		tasksFn: func(ctx context.Context, groupID, listID int64, d time.Time) ([]model.Task, error) {
			return []model.Task{{ID: 10, ListID: listID}}, nil
		},
		deleteTaskFn: func(ctx context.Context, groupID, listID, taskID int64) error {
			if fail {
				return &apperr.NetworkError{Err: context.DeadlineExceeded}
			}
			return nil
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx := context.Background()

	if _, err := svc.TaskLists(ctx, 1); err != nil {
		t.Fatalf("TaskLists: %v", err)
	}
	if _, err := svc.TaskList(ctx, 1, 2); err != nil {
		t.Fatalf("TaskList: %v", err)
	}
	if _, err := svc.Tasks(ctx, 1, 2, date); err != nil {
		t.Fatalf("Tasks: %v", err)
	}

	if err := svc.DeleteTask(ctx, 1, 2, 10); !apperr.IsNetwork(err) {
		t.Fatalf("DeleteTask err = %v, want network error", err)
	}
	if _, ok := store.Get(listKey(1, 2)); !ok {
		t.Fatal("failed delete dropped the cached list")
	}

	fail = false
	if err := svc.DeleteTask(ctx, 1, 2, 10); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	for _, key := range []string{taskKey(10), listKey(1, 2), listTasksKey(1, 2, date), groupListsKey(1)} {
		if _, ok := store.Get(key); ok {
			t.Errorf("view %q survived the delete", key)
		}
	}
}

func TestRefreshGroupStalesAllGroupViews(t *testing.T) {
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	mock := &taskAPIMock{
		taskListsFn: func(ctx context.Context, groupID int64) ([]model.TaskList, error) {
			return nil, nil
		},
		taskListFn: func(ctx context.Context, groupID, listID int64) (*model.TaskList, error) {
			return &model.TaskList{ID: listID}, nil
		},
		tasksFn: func(ctx context.Context, groupID, listID int64, d time.Time) ([]model.Task, error) {
			return nil, nil
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx := context.Background()

	if _, err := svc.TaskLists(ctx, 1); err != nil {
		t.Fatalf("TaskLists: %v", err)
	}
	if _, err := svc.TaskList(ctx, 1, 2); err != nil {
		t.Fatalf("TaskList: %v", err)
	}
	if _, err := svc.Tasks(ctx, 1, 2, date); err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if _, err := svc.TaskLists(ctx, 9); err != nil {
		t.Fatalf("TaskLists other group: %v", err)
	}

	svc.RefreshGroup(1)

	for _, key := range []string{groupListsKey(1), listKey(1, 2), listTasksKey(1, 2, date)} {
		if _, ok := store.Get(key); ok {
			t.Errorf("key %q survived the group refresh", key)
		}
	}
	if _, ok := store.Get(groupListsKey(9)); !ok {
		t.Error("another group's views were refreshed too")
	}
}

func TestWatchGroupRewarmsAfterInvalidation(t *testing.T) {
	calls := make(chan struct{}, 32)
	mock := &taskAPIMock{
		taskListsFn: func(ctx context.Context, groupID int64) ([]model.TaskList, error) {
			calls <- struct{}{}
			return []model.TaskList{{ID: 1}}, nil
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.WatchGroup(ctx, 1)

	if _, err := svc.TaskLists(ctx, 1); err != nil {
		t.Fatalf("TaskLists: %v", err)
	}
	<-calls

	// Retry the refresh until the watcher has registered and refetched.
	warmed := false
	for i := 0; i < 20 && !warmed; i++ {
		svc.RefreshGroup(1)
		select {
		case <-calls:
			warmed = true
		case <-time.After(50 * time.Millisecond):
		}
	}
	if !warmed {
		t.Fatal("watcher did not re-warm the group lists")
	}
}

func TestCreateTaskValidationNeverReachesBackend(t *testing.T) {
	calls := 0
	mock := &taskAPIMock{
		createTaskFn: func(ctx context.Context, groupID, listID int64, req api.CreateTaskRequest) (*model.Task, error) {
			calls++
			return &model.Task{ID: 1}, nil
		},
	}
	svc := NewTaskService(mock, cache.NewStore())
	ctx := context.Background()
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input TaskInput
	}{
		{"blank name", TaskInput{Name: "   ", Date: date, Frequency: recurrence.Daily}},
		{"weekly without days", TaskInput{Name: "Standup", Date: date, Frequency: recurrence.Weekly}},
		{"monthly day out of range", TaskInput{Name: "Rent", Date: date, Frequency: recurrence.Monthly, MonthDay: 32}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTask(ctx, 1, 2, tc.input)
			if !apperr.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
	if calls != 0 {
		t.Errorf("backend calls = %d, want 0", calls)
	}
}

func TestCreateTaskTrimsNameAndInvalidates(t *testing.T) {
	var got api.CreateTaskRequest
	mock := &taskAPIMock{
		createTaskFn: func(ctx context.Context, groupID, listID int64, req api.CreateTaskRequest) (*model.Task, error) {
			got = req
			return &model.Task{ID: 5, ListID: listID, Name: req.Name}, nil
		},
		taskListsFn: func(ctx context.Context, groupID int64) ([]model.TaskList, error) {
			return nil, nil
		},
	}
	store := cache.NewStore()
	svc := NewTaskService(mock, store)
	ctx := context.Background()

	if _, err := svc.TaskLists(ctx, 1); err != nil {
		t.Fatalf("TaskLists: %v", err)
	}

	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	input := TaskInput{
		Name:      "  Water plants  ",
		Date:      date,
		Frequency: recurrence.Weekly,
		WeekDays:  []time.Weekday{time.Monday, time.Thursday},
	}
	if _, err := svc.CreateTask(ctx, 1, 2, input); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if got.Name != "Water plants" {
		t.Errorf("request name = %q, want trimmed", got.Name)
	}
	if len(got.WeekDays) != 2 || got.WeekDays[0] != 1 || got.WeekDays[1] != 4 {
		t.Errorf("request weekDays = %v, want [1 4]", got.WeekDays)
	}
	if _, ok := store.Get(groupListsKey(1)); ok {
		t.Error("group lists view survived the create")
	}
}
