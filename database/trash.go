package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TrashRef points at one trashed record, across users.
type TrashRef struct {
	UserID string
	Entity EntityType
	ID     string
}

// ListTrashedTasks returns the user's trashed tasks, most recently trashed first.
func (s *Store) ListTrashedTasks(ctx context.Context, userID string) ([]TrashedTask, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+`, COALESCE(p.name, ''), COALESCE(p.icon, ''), p.deleted_at IS NOT NULL
		 FROM tasks t LEFT JOIN projects p ON p.id = t.project_id
		 WHERE t.user_id = ? AND t.deleted_at IS NOT NULL
		 ORDER BY t.deleted_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trashed tasks: %w", err)
	}
	defer rows.Close()

	var trashed []TrashedTask
	for rows.Next() {
		var (
			tt        TrashedTask
			projectID sql.NullString
			dueDate   sql.NullString
			deletedAt sql.NullTime
			priority  string
		)
		err := rows.Scan(
			&tt.ID, &tt.UserID, &projectID, &tt.Title, &tt.Description, &tt.Status, &priority,
			&tt.Category, &dueDate, &tt.Position, &tt.CoverURL, &tt.CreatedAt, &tt.UpdatedAt, &deletedAt,
			&tt.CommentsCount, &tt.AttachmentsCount,
			&tt.ProjectName, &tt.ProjectIcon, &tt.ProjectTrashed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trashed task: %w", err)
		}
		tt.ProjectID = stringPtr(projectID)
		tt.DueDate = stringPtr(dueDate)
		tt.DeletedAt = timePtr(deletedAt)
		tt.Priority = Priority(priority)
		tt.Subtasks = []Subtask{}
		trashed = append(trashed, tt)
	}
	return trashed, rows.Err()
}

// ListTrashedProjects returns the user's trashed projects, most recently trashed first.
func (s *Store) ListTrashedProjects(ctx context.Context, userID string) ([]Project, error) {
	return s.queryProjects(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE user_id = ? AND deleted_at IS NOT NULL ORDER BY deleted_at DESC",
		userID)
}

// ListExpiredTrash returns every task and project trashed before the cutoff.
func (s *Store) ListExpiredTrash(ctx context.Context, before time.Time) ([]TrashRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, 'task', id FROM tasks WHERE deleted_at IS NOT NULL AND deleted_at < ?
		 UNION ALL
		 SELECT user_id, 'project', id FROM projects WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		before.UTC(), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired trash: %w", err)
	}
	defer rows.Close()

	var refs []TrashRef
	for rows.Next() {
		var (
			ref    TrashRef
			entity string
		)
		if err := rows.Scan(&ref.UserID, &entity, &ref.ID); err != nil {
			return nil, fmt.Errorf("failed to scan expired trash: %w", err)
		}
		ref.Entity = EntityType(entity)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
