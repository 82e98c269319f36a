// Package api is the HTTP client for the task backend. It owns the wire
// contract only: bearer credential, JSON payloads, and the mapping of
// failures into apperr kinds.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"teamtasks/internal/apperr"
	"teamtasks/internal/model"
)

const (
	defaultTimeout = 15 * time.Second

	// Backend quota is generous; the limiter only smooths bursts from
	// refetch storms after a broad invalidation.
	requestsPerSecond = 20
)

// Client talks to the backend HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// Option tweaks a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	// A context cut short here produced no response, same as a transport
	// failure further down.
	if err := c.limiter.Wait(ctx); err != nil {
		return &apperr.NetworkError{Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperr.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		he := &apperr.HTTPError{Status: resp.StatusCode}
		var eb errorBody
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); readErr == nil {
			if json.Unmarshal(data, &eb) == nil {
				he.Message = eb.Error
				if he.Message == "" {
					he.Message = eb.Message
				}
			}
		}
		return he
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// get runs a collection read where a 404 means "no data yet", not failure.
func (c *Client) getCollection(ctx context.Context, path string, out any) error {
	err := c.do(ctx, http.MethodGet, path, nil, out)
	if apperr.IsNotFound(err) {
		return nil
	}
	return err
}

// TaskLists returns the group's task lists with nested tasks.
func (c *Client) TaskLists(ctx context.Context, groupID int64) ([]model.TaskList, error) {
	var lists []model.TaskList
	if err := c.getCollection(ctx, fmt.Sprintf("/groups/%d/task-lists", groupID), &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// TaskList returns one task list with nested tasks.
func (c *Client) TaskList(ctx context.Context, groupID, listID int64) (*model.TaskList, error) {
	var list model.TaskList
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/groups/%d/task-lists/%d", groupID, listID), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Tasks returns the list's tasks occurring on the given date.
func (c *Client) Tasks(ctx context.Context, groupID, listID int64, date time.Time) ([]model.Task, error) {
	var tasks []model.Task
	path := fmt.Sprintf("/groups/%d/task-lists/%d/tasks?date=%s", groupID, listID, date.Format("2006-01-02"))
	if err := c.getCollection(ctx, path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Task returns one task.
func (c *Client) Task(ctx context.Context, groupID, listID, taskID int64) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/groups/%d/task-lists/%d/tasks/%d", groupID, listID, taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTaskRequest is the POST payload for a new task.
type CreateTaskRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Date        time.Time `json:"date"`
	Frequency   string    `json:"frequency"`
	WeekDays    []int     `json:"weekDays,omitempty"`
	MonthDay    int       `json:"monthDay,omitempty"`
}

// CreateTask creates a task inside a list.
func (c *Client) CreateTask(ctx context.Context, groupID, listID int64, req CreateTaskRequest) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%d/task-lists/%d/tasks", groupID, listID), req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SetTaskDone flips the task's completion state. The server assigns doneAt;
// re-marking a done task keeps the original timestamp.
func (c *Client) SetTaskDone(ctx context.Context, groupID, listID, taskID int64, done bool) (*model.Task, error) {
	var task model.Task
	body := map[string]bool{"done": done}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/groups/%d/task-lists/%d/tasks/%d", groupID, listID, taskID), body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, groupID, listID, taskID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/groups/%d/task-lists/%d/tasks/%d", groupID, listID, taskID), nil, nil)
}

// Comments returns the task's comment thread.
func (c *Client) Comments(ctx context.Context, taskID int64) ([]model.Comment, error) {
	var comments []model.Comment
	if err := c.getCollection(ctx, fmt.Sprintf("/tasks/%d/comments", taskID), &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment appends to the task's comment thread. Order and id are
// assigned server-side.
func (c *Client) CreateComment(ctx context.Context, taskID int64, content string) (*model.Comment, error) {
	var comment model.Comment
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tasks/%d/comments", taskID), body, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// UpdateComment rewrites a comment's content.
func (c *Client) UpdateComment(ctx context.Context, taskID, commentID int64, content string) (*model.Comment, error) {
	var comment model.Comment
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%d/comments/%d", taskID, commentID), body, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, taskID, commentID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%d/comments/%d", taskID, commentID), nil, nil)
}
