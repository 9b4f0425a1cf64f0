package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TaskInput carries the editable fields of a task.
type TaskInput struct {
	ProjectID   *string
	Title       string
	Description string
	Status      Status
	Priority    Priority
	Category    string
	DueDate     *string
}

const taskColumns = `t.id, t.user_id, t.project_id, t.title, t.description, t.status, t.priority,
	t.category, t.due_date, t.position, t.cover_url, t.created_at, t.updated_at, t.deleted_at,
	(SELECT COUNT(*) FROM task_comments c WHERE c.task_id = t.id AND c.deleted_at IS NULL),
	(SELECT COUNT(*) FROM task_attachments a WHERE a.task_id = t.id AND a.deleted_at IS NULL)`

func scanTask(row rowScanner) (Task, error) {
	var (
		task      Task
		projectID sql.NullString
		dueDate   sql.NullString
		deletedAt sql.NullTime
		priority  string
	)
	err := row.Scan(
		&task.ID, &task.UserID, &projectID, &task.Title, &task.Description, &task.Status, &priority,
		&task.Category, &dueDate, &task.Position, &task.CoverURL, &task.CreatedAt, &task.UpdatedAt, &deletedAt,
		&task.CommentsCount, &task.AttachmentsCount,
	)
	if err != nil {
		return Task{}, err
	}
	task.ProjectID = stringPtr(projectID)
	task.DueDate = stringPtr(dueDate)
	task.DeletedAt = timePtr(deletedAt)
	task.Priority = Priority(priority)
	task.Subtasks = []Subtask{}
	return task, nil
}

// ListTasks returns the user's live tasks ordered by position, then creation
// time. An empty projectID lists every project.
func (s *Store) ListTasks(ctx context.Context, userID, projectID string) ([]Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks t WHERE t.user_id = ? AND t.deleted_at IS NULL"
	args := []any{userID}
	if projectID != "" {
		query += " AND t.project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY t.position ASC, t.created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	rows.Close()

	for i := range tasks {
		subtasks, err := s.ListSubtasks(ctx, userID, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Subtasks = subtasks
	}
	return tasks, nil
}

// GetTask returns one live task with its subtasks.
func (s *Store) GetTask(ctx context.Context, userID, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks t WHERE t.id = ? AND t.user_id = ? AND t.deleted_at IS NULL",
		id, userID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to query task: %w", err)
	}

	subtasks, err := s.ListSubtasks(ctx, userID, id)
	if err != nil {
		return Task{}, err
	}
	task.Subtasks = subtasks
	return task, nil
}

// CreateTask inserts a task at the end of its column.
func (s *Store) CreateTask(ctx context.Context, userID string, input TaskInput) (Task, error) {
	now := s.now()
	id := uuid.NewString()

	var position int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM tasks
		 WHERE user_id = ? AND status = ? AND deleted_at IS NULL AND project_id IS ?`,
		userID, input.Status, nullString(input.ProjectID)).Scan(&position)
	if err != nil {
		return Task{}, fmt.Errorf("failed to compute task position: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, project_id, title, description, status, priority, category,
			due_date, position, created_at, updated_at, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, nullString(input.ProjectID), input.Title, input.Description, input.Status,
		string(input.Priority), input.Category, nullString(input.DueDate), position, now, now, userID)
	if err != nil {
		return Task{}, fmt.Errorf("failed to insert task: %w", err)
	}

	return s.GetTask(ctx, userID, id)
}

// UpdateTask rewrites the editable fields of a live task.
func (s *Store) UpdateTask(ctx context.Context, userID, id string, input TaskInput) (Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET project_id = ?, title = ?, description = ?, status = ?, priority = ?,
			category = ?, due_date = ?, updated_at = ?, updated_by = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		nullString(input.ProjectID), input.Title, input.Description, input.Status, string(input.Priority),
		input.Category, nullString(input.DueDate), s.now(), userID, id, userID)
	if err != nil {
		return Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	if err := requireRow(res, EntityTask, id); err != nil {
		return Task{}, err
	}
	return s.GetTask(ctx, userID, id)
}

// SetTaskCover stores the cover image URL; an empty url clears it.
func (s *Store) SetTaskCover(ctx context.Context, userID, id, url string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET cover_url = ?, updated_at = ?, updated_by = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		url, s.now(), userID, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update task cover: %w", err)
	}
	return requireRow(res, EntityTask, id)
}

// BatchUpdatePositions writes absolute (status, position) pairs in one
// transaction. Rows already holding the values are left untouched, so
// repeating a batch changes nothing. Tasks that are trashed or gone are skipped.
func (s *Store) BatchUpdatePositions(ctx context.Context, userID string, updates []PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE tasks SET status = ?, position = ?, updated_at = ?, updated_by = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL AND (status != ? OR position != ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare position update: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Status, u.Position, now, userID, u.ID, userID, u.Status, u.Position); err != nil {
			return fmt.Errorf("failed to update position of task %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
