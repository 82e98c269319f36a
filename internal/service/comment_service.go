package service

import (
	"context"
	"fmt"
	"strings"

	"teamtasks/internal/apperr"
	"teamtasks/internal/cache"
	"teamtasks/internal/model"
)

// CommentAPI is the backend surface the comment service needs.
type CommentAPI interface {
	Comments(ctx context.Context, taskID int64) ([]model.Comment, error)
	CreateComment(ctx context.Context, taskID int64, content string) (*model.Comment, error)
	UpdateComment(ctx context.Context, taskID, commentID int64, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, taskID, commentID int64) error
}

func commentsKey(taskID int64) string {
	return fmt.Sprintf("task:%d:comments", taskID)
}

// CommentService manages a task's comment thread. All four operations share
// one invalidation key per task id; that key is the single source of truth
// for comment count and ordering, so no mutation ever patches the cached
// collection locally.
type CommentService struct {
	api   CommentAPI
	store *cache.Store
}

func NewCommentService(api CommentAPI, store *cache.Store) *CommentService {
	return &CommentService{api: api, store: store}
}

// Comments returns the thread, cached until a write invalidates it.
func (s *CommentService) Comments(ctx context.Context, taskID int64) ([]model.Comment, error) {
	key := commentsKey(taskID)
	if v, ok := s.store.Get(key); ok {
		return v.([]model.Comment), nil
	}
	comments, err := s.api.Comments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, comments)
	return comments, nil
}

// Create appends a comment. Whitespace-only content is rejected before any
// network call. Order and id come from the backend, so on success the
// thread is invalidated, never appended to locally.
func (s *CommentService) Create(ctx context.Context, taskID int64, content string) (*model.Comment, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &apperr.ValidationError{Field: "content", Reason: "comment cannot be empty"}
	}
	comment, err := s.api.CreateComment(ctx, taskID, trimmed)
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	s.invalidateThread(taskID)
	return comment, nil
}

// Update rewrites a comment with trimmed content, same validation as Create.
func (s *CommentService) Update(ctx context.Context, taskID, commentID int64, content string) (*model.Comment, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &apperr.ValidationError{Field: "content", Reason: "comment cannot be empty"}
	}
	comment, err := s.api.UpdateComment(ctx, taskID, commentID, trimmed)
	if err != nil {
		return nil, fmt.Errorf("update comment %d: %w", commentID, err)
	}
	s.invalidateThread(taskID)
	return comment, nil
}

// Delete removes a comment. The collection only shrinks once the call has
// succeeded and the key is invalidated; there is no optimistic removal.
func (s *CommentService) Delete(ctx context.Context, taskID, commentID int64) error {
	if err := s.api.DeleteComment(ctx, taskID, commentID); err != nil {
		return fmt.Errorf("delete comment %d: %w", commentID, err)
	}
	s.invalidateThread(taskID)
	return nil
}

// invalidateThread stales the thread and the task detail, whose
// denormalized commentCount derives from it.
func (s *CommentService) invalidateThread(taskID int64) {
	s.store.Invalidate(commentsKey(taskID), taskKey(taskID))
}
