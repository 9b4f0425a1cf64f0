package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]`)
)

// Slugify lower-cases name, turns whitespace runs into dashes and drops
// anything outside [a-z0-9-].
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugSpaces.ReplaceAllString(slug, "-")
	return slugInvalid.ReplaceAllString(slug, "")
}

const projectColumns = "id, user_id, name, slug, icon, description, created_at, updated_at, deleted_at"

func scanProject(row rowScanner) (Project, error) {
	var (
		p         Project
		deletedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Slug, &p.Icon, &p.Description, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
		return Project{}, err
	}
	p.DeletedAt = timePtr(deletedAt)
	return p, nil
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListProjects returns live projects, newest first.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	return s.queryProjects(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at DESC",
		userID)
}

func (s *Store) getProject(ctx context.Context, where string, args ...any) (Project, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE "+where+" AND deleted_at IS NULL LIMIT 1", args...)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("project: %w", ErrNotFound)
	}
	if err != nil {
		return Project{}, fmt.Errorf("failed to query project: %w", err)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, userID, id string) (Project, error) {
	return s.getProject(ctx, "user_id = ? AND id = ?", userID, id)
}

func (s *Store) GetProjectBySlug(ctx context.Context, userID, slug string) (Project, error) {
	return s.getProject(ctx, "user_id = ? AND slug = ?", userID, slug)
}

func (s *Store) CreateProject(ctx context.Context, userID, name, icon, description string) (Project, error) {
	if icon == "" {
		icon = "folder"
	}
	now := s.now()
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, slug, icon, description, created_at, updated_at, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, name, Slugify(name), icon, description, now, now, userID)
	if err != nil {
		return Project{}, fmt.Errorf("failed to insert project: %w", err)
	}
	return s.GetProject(ctx, userID, id)
}

func (s *Store) UpdateProject(ctx context.Context, userID, id, name, icon, description string) (Project, error) {
	if icon == "" {
		icon = "folder"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, slug = ?, icon = ?, description = ?, updated_at = ?, updated_by = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		name, Slugify(name), icon, description, s.now(), userID, id, userID)
	if err != nil {
		return Project{}, fmt.Errorf("failed to update project: %w", err)
	}
	if err := requireRow(res, EntityProject, id); err != nil {
		return Project{}, err
	}
	return s.GetProject(ctx, userID, id)
}
