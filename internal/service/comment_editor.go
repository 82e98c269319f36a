package service

import (
	"context"

	"teamtasks/internal/apperr"
	"teamtasks/internal/model"
)

// CommentEditor is the per-comment view/edit machine. A comment is either
// displayed (VIEW) or being rewritten in a local buffer (EDITING). Editors
// for different comments are independent of each other.
type CommentEditor struct {
	svc     *CommentService
	taskID  int64
	comment model.Comment
	editing bool
	buffer  string
}

func NewCommentEditor(svc *CommentService, taskID int64, comment model.Comment) *CommentEditor {
	return &CommentEditor{svc: svc, taskID: taskID, comment: comment}
}

// Comment returns the last confirmed comment.
func (e *CommentEditor) Comment() model.Comment {
	return e.comment
}

// Editing reports whether the editor is in the EDITING state.
func (e *CommentEditor) Editing() bool {
	return e.editing
}

// Buffer returns the current edit buffer.
func (e *CommentEditor) Buffer() string {
	return e.buffer
}

// SetBuffer replaces the edit buffer. Outside EDITING it is a no-op.
func (e *CommentEditor) SetBuffer(text string) {
	if e.editing {
		e.buffer = text
	}
}

// StartEdit moves to EDITING, seeding the buffer with the current content.
// Already editing, it keeps the buffer as typed.
func (e *CommentEditor) StartEdit() {
	if e.editing {
		return
	}
	e.editing = true
	e.buffer = e.comment.Content
}

// Cancel discards the buffer unconditionally and returns to VIEW. No write
// is issued.
func (e *CommentEditor) Cancel() {
	e.editing = false
	e.buffer = ""
}

// Save pushes the trimmed buffer to the backend. An empty buffer is
// rejected without a network call and the editor stays in EDITING with the
// buffer intact; so does any backend failure, leaving the confirmed content
// untouched. On success the editor returns to VIEW and the thread's cache
// key is invalidated by the service.
func (e *CommentEditor) Save(ctx context.Context) error {
	if !e.editing {
		return &apperr.ValidationError{Field: "state", Reason: "comment is not being edited"}
	}
	updated, err := e.svc.Update(ctx, e.taskID, e.comment.ID, e.buffer)
	if err != nil {
		return err
	}
	e.comment = *updated
	e.editing = false
	e.buffer = ""
	return nil
}
