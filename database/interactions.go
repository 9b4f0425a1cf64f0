package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SubtaskInput is a subtask as drafted by the editor. An empty ID means new.
type SubtaskInput struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	IsDone bool   `json:"is_done"`
}

// ListComments returns live comments on a task, newest first.
func (s *Store) ListComments(ctx context.Context, userID, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, task_id, content, created_at FROM task_comments
		 WHERE task_id = ? AND user_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`,
		taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.UserID, &c.TaskID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) AddComment(ctx context.Context, userID, taskID, content string) (Comment, error) {
	c := Comment{ID: uuid.NewString(), UserID: userID, TaskID: taskID, Content: content, CreatedAt: s.now()}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO task_comments (id, task_id, user_id, content, created_at, updated_by) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.TaskID, userID, c.Content, c.CreatedAt, userID)
	if err != nil {
		return Comment{}, fmt.Errorf("failed to insert comment: %w", err)
	}
	return c, nil
}

const attachmentColumns = "id, user_id, task_id, file_name, file_url, file_size, created_at"

func scanAttachment(row rowScanner) (Attachment, error) {
	var (
		a    Attachment
		size sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.TaskID, &a.FileName, &a.FileURL, &size, &a.CreatedAt); err != nil {
		return Attachment{}, err
	}
	if size.Valid {
		a.FileSize = &size.Int64
	}
	return a, nil
}

// ListAttachments returns live attachments on a task, newest first.
func (s *Store) ListAttachments(ctx context.Context, userID, taskID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+attachmentColumns+` FROM task_attachments
		 WHERE task_id = ? AND user_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`,
		taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	attachments := []Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (s *Store) GetAttachment(ctx context.Context, userID, id string) (Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+attachmentColumns+" FROM task_attachments WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		id, userID)
	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to query attachment: %w", err)
	}
	return a, nil
}

func (s *Store) AddAttachment(ctx context.Context, userID, taskID, fileName, fileURL string, size int64) (Attachment, error) {
	a := Attachment{
		ID:        uuid.NewString(),
		UserID:    userID,
		TaskID:    taskID,
		FileName:  fileName,
		FileURL:   fileURL,
		FileSize:  &size,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_attachments (id, task_id, user_id, file_name, file_url, file_size, created_at, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, taskID, userID, fileName, fileURL, size, a.CreatedAt, userID)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to insert attachment: %w", err)
	}
	return a, nil
}

// ListSubtasks returns live subtasks in sort order.
func (s *Store) ListSubtasks(ctx context.Context, userID, taskID string) ([]Subtask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, title, is_done, sort_order, created_at FROM task_subtasks
		 WHERE task_id = ? AND user_id = ? AND deleted_at IS NULL ORDER BY sort_order ASC, created_at ASC`,
		taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtasks: %w", err)
	}
	defer rows.Close()

	subtasks := []Subtask{}
	for rows.Next() {
		var st Subtask
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &st.IsDone, &st.SortOrder, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		subtasks = append(subtasks, st)
	}
	return subtasks, rows.Err()
}

// CreateSubtask inserts one subtask with the given sort order.
func (s *Store) CreateSubtask(ctx context.Context, userID, taskID string, input SubtaskInput, sortOrder int) (Subtask, error) {
	st := Subtask{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Title:     input.Title,
		IsDone:    input.IsDone,
		SortOrder: sortOrder,
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_subtasks (id, task_id, user_id, title, is_done, sort_order, created_at, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, taskID, userID, st.Title, st.IsDone, sortOrder, st.CreatedAt, userID)
	if err != nil {
		return Subtask{}, fmt.Errorf("failed to insert subtask: %w", err)
	}
	return st, nil
}

func (s *Store) UpdateSubtask(ctx context.Context, userID, id string, input SubtaskInput, sortOrder int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_subtasks SET title = ?, is_done = ?, sort_order = ?, updated_by = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		input.Title, input.IsDone, sortOrder, userID, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update subtask: %w", err)
	}
	return requireRow(res, EntitySubtask, id)
}

func (s *Store) SetSubtaskDone(ctx context.Context, userID, id string, done bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE task_subtasks SET is_done = ?, updated_by = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		done, userID, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update subtask: %w", err)
	}
	return requireRow(res, EntitySubtask, id)
}
