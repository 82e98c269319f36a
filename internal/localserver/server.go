// Package localserver is a self-hostable reference implementation of the
// backend HTTP API the client consumes. It exists for development and
// integration tests; the production backend is an external system.
package localserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"teamtasks/internal/model"
	"teamtasks/internal/recurrence"
)

// Server serves the task API over a gorm-backed store.
type Server struct {
	db     *gorm.DB
	secret string
}

func New(db *gorm.DB, secret string) *Server {
	return &Server{db: db, secret: secret}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	authed := r.Group("/", bearerAuth(s.secret))

	authed.GET("/groups/:groupID/task-lists", s.listTaskLists)
	authed.POST("/groups/:groupID/task-lists", s.createTaskList)
	authed.GET("/groups/:groupID/task-lists/:listID", s.getTaskList)
	authed.DELETE("/groups/:groupID/task-lists/:listID", s.deleteTaskList)

	authed.GET("/groups/:groupID/task-lists/:listID/tasks", s.listTasks)
	authed.POST("/groups/:groupID/task-lists/:listID/tasks", s.createTask)
	authed.GET("/groups/:groupID/task-lists/:listID/tasks/:taskID", s.getTask)
	authed.PATCH("/groups/:groupID/task-lists/:listID/tasks/:taskID", s.patchTask)
	authed.DELETE("/groups/:groupID/task-lists/:listID/tasks/:taskID", s.deleteTask)

	authed.GET("/tasks/:taskID/comments", s.listComments)
	authed.POST("/tasks/:taskID/comments", s.createComment)
	authed.PATCH("/tasks/:taskID/comments/:commentID", s.updateComment)
	authed.DELETE("/tasks/:taskID/comments/:commentID", s.deleteComment)

	return r
}

func (s *Server) listTaskLists(c *gin.Context) {
	groupID, ok := pathID(c, "groupID")
	if !ok {
		return
	}
	var lists []model.TaskList
	if err := s.db.Preload("Tasks").Where("group_id = ?", groupID).
		Order("display_index, id").Find(&lists).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task lists"})
		return
	}
	c.JSON(http.StatusOK, lists)
}

type createTaskListRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) createTaskList(c *gin.Context) {
	groupID, ok := pathID(c, "groupID")
	if !ok {
		return
	}
	var req createTaskListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	var count int64
	s.db.Model(&model.TaskList{}).Where("group_id = ?", groupID).Count(&count)

	list := model.TaskList{GroupID: groupID, Name: req.Name, DisplayIndex: int(count)}
	if err := s.db.Create(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task list"})
		return
	}
	c.JSON(http.StatusCreated, list)
}

func (s *Server) getTaskList(c *gin.Context) {
	list, ok := s.findList(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) deleteTaskList(c *gin.Context) {
	list, ok := s.findList(c)
	if !ok {
		return
	}
	// Tasks and their comments go with the list.
	var taskIDs []int64
	s.db.Model(&model.Task{}).Where("list_id = ?", list.ID).Pluck("id", &taskIDs)
	if len(taskIDs) > 0 {
		s.db.Where("task_id IN ?", taskIDs).Delete(&model.Comment{})
		s.db.Where("list_id = ?", list.ID).Delete(&model.Task{})
	}
	if err := s.db.Delete(&model.TaskList{}, list.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete task list"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listTasks(c *gin.Context) {
	list, ok := s.findList(c)
	if !ok {
		return
	}

	tasks := list.Tasks
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		filtered := make([]model.Task, 0, len(tasks))
		for _, task := range tasks {
			rule, err := task.Rule()
			if err != nil {
				continue
			}
			if rule.IsOccurrence(date) {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}

	c.JSON(http.StatusOK, tasks)
}

type createTaskRequest struct {
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
	Date        time.Time `json:"date" binding:"required"`
	Frequency   string    `json:"frequency" binding:"required"`
	WeekDays    []int     `json:"weekDays"`
	MonthDay    int       `json:"monthDay"`
	RecurringID *int64    `json:"recurringId"`
}

func (s *Server) createTask(c *gin.Context) {
	list, ok := s.findList(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	freq, err := recurrence.ParseFrequency(req.Frequency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days := make([]time.Weekday, 0, len(req.WeekDays))
	for _, d := range req.WeekDays {
		days = append(days, time.Weekday(d))
	}
	if _, err := recurrence.NewRule(freq, req.Date, days, req.MonthDay); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := model.Task{
		ListID:      list.ID,
		Name:        req.Name,
		Description: req.Description,
		Date:        req.Date,
		Frequency:   freq,
		WeekDays:    req.WeekDays,
		MonthDay:    req.MonthDay,
		RecurringID: req.RecurringID,
	}
	if err := s.db.Create(&task).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) getTask(c *gin.Context) {
	task, ok := s.findTask(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, task)
}

type patchTaskRequest struct {
	Done   *bool      `json:"done"`
	DoneAt *time.Time `json:"doneAt"`
	Name   *string    `json:"name"`
}

func (s *Server) patchTask(c *gin.Context) {
	task, ok := s.findTask(c)
	if !ok {
		return
	}
	var req patchTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	switch {
	case req.Done != nil:
		if *req.Done {
			// Re-marking a done task keeps its original completion time.
			if task.DoneAt == nil {
				now := time.Now().UTC()
				task.DoneAt = &now
			}
		} else {
			task.DoneAt = nil
		}
	case req.DoneAt != nil:
		task.DoneAt = req.DoneAt
	}
	if req.Name != nil {
		task.Name = *req.Name
	}

	if err := s.db.Model(&model.Task{}).Where("id = ?", task.ID).
		Updates(map[string]any{"done_at": task.DoneAt, "name": task.Name}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update task"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) deleteTask(c *gin.Context) {
	task, ok := s.findTask(c)
	if !ok {
		return
	}
	s.db.Where("task_id = ?", task.ID).Delete(&model.Comment{})
	if err := s.db.Delete(&model.Task{}, task.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete task"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listComments(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}
	var comments []model.Comment
	if err := s.db.Where("task_id = ?", taskID).Order("created_at, id").Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load comments"})
		return
	}
	c.JSON(http.StatusOK, comments)
}

type commentRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) createComment(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}
	var task model.Task
	if err := s.db.First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task"})
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	comment := model.Comment{
		TaskID:  taskID,
		Content: req.Content,
		Writer:  currentUser(c),
	}
	if err := s.db.Create(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create comment"})
		return
	}
	s.refreshCommentCount(taskID)
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) updateComment(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "commentID")
	if !ok {
		return
	}
	var comment model.Comment
	if err := s.db.Where("task_id = ?", taskID).First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load comment"})
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	comment.Content = req.Content
	if err := s.db.Save(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update comment"})
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (s *Server) deleteComment(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "commentID")
	if !ok {
		return
	}
	result := s.db.Where("task_id = ?", taskID).Delete(&model.Comment{}, commentID)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete comment"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	s.refreshCommentCount(taskID)
	c.Status(http.StatusNoContent)
}

// refreshCommentCount keeps the denormalized counter equal to the live
// collection size.
func (s *Server) refreshCommentCount(taskID int64) {
	var count int64
	s.db.Model(&model.Comment{}).Where("task_id = ?", taskID).Count(&count)
	s.db.Model(&model.Task{}).Where("id = ?", taskID).Update("comment_count", count)
}

func (s *Server) findList(c *gin.Context) (*model.TaskList, bool) {
	groupID, ok := pathID(c, "groupID")
	if !ok {
		return nil, false
	}
	listID, ok := pathID(c, "listID")
	if !ok {
		return nil, false
	}
	var list model.TaskList
	err := s.db.Preload("Tasks").Where("group_id = ?", groupID).First(&list, listID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task list not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task list"})
		return nil, false
	}
	return &list, true
}

func (s *Server) findTask(c *gin.Context) (*model.Task, bool) {
	list, ok := s.findList(c)
	if !ok {
		return nil, false
	}
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return nil, false
	}
	for i := range list.Tasks {
		if list.Tasks[i].ID == taskID {
			return &list.Tasks[i], true
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	return nil, false
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := parseID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
