package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row does not exist, belongs to another user or is trashed.
var ErrNotFound = errors.New("not found")

var schema = []struct {
	name string
	stmt string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	{"projects", `CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT 'folder',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		updated_by TEXT,
		deleted_at TIMESTAMP
	)`},
	{"tasks", `CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		project_id TEXT REFERENCES projects(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'todo',
		priority TEXT NOT NULL DEFAULT 'Medium',
		category TEXT NOT NULL DEFAULT '',
		due_date TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		cover_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		updated_by TEXT,
		deleted_at TIMESTAMP
	)`},
	{"task_subtasks", `CREATE TABLE IF NOT EXISTS task_subtasks (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_done INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_by TEXT,
		deleted_at TIMESTAMP
	)`},
	{"task_comments", `CREATE TABLE IF NOT EXISTS task_comments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_by TEXT,
		deleted_at TIMESTAMP
	)`},
	{"task_attachments", `CREATE TABLE IF NOT EXISTS task_attachments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_url TEXT NOT NULL,
		file_size INTEGER,
		created_at TIMESTAMP NOT NULL,
		updated_by TEXT,
		deleted_at TIMESTAMP
	)`},
	{"tasks position index", `CREATE INDEX IF NOT EXISTS idx_tasks_board ON tasks(user_id, project_id, status, position)`},
	{"subtasks task index", `CREATE INDEX IF NOT EXISTS idx_task_subtasks_task_id ON task_subtasks(task_id)`},
	{"comments task index", `CREATE INDEX IF NOT EXISTS idx_task_comments_task_id ON task_comments(task_id)`},
	{"attachments task index", `CREATE INDEX IF NOT EXISTS idx_task_attachments_task_id ON task_attachments(task_id)`},
}

// InitDB opens the sqlite database at path and creates the schema.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	for _, s := range schema {
		if _, err := db.Exec(s.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s: %w", s.name, err)
		}
	}

	log.Println("Database initialized successfully")
	return db, nil
}

// Store is the remote store behind the board: tasks, projects and their
// dependent records, all scoped to the user that owns them.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureUser records a user the first time they sign in.
func (s *Store) EnsureUser(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO users (email) VALUES (?) ON CONFLICT(email) DO NOTHING", email)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// SoftDelete stamps the deletion marker on one live record.
func (s *Store) SoftDelete(ctx context.Context, userID string, entity EntityType, id string) error {
	table, err := entity.table()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = ?, updated_by = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		s.now(), userID, id, userID)
	if err != nil {
		return fmt.Errorf("failed to soft delete %s %s: %w", entity, id, err)
	}
	return requireRow(res, entity, id)
}

// Restore clears the deletion marker on the given records.
func (s *Store) Restore(ctx context.Context, userID string, entity EntityType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := entity.table()
	if err != nil {
		return err
	}

	args := append([]any{userID, userID}, stringArgs(ids)...)
	_, err = s.db.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = NULL, updated_by = ? WHERE user_id = ? AND id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return fmt.Errorf("failed to restore %s: %w", entity, err)
	}
	return nil
}

// HardDelete removes trashed records for good. Live records are never
// touched. Dependents follow the schema's own ON DELETE rules.
func (s *Store) HardDelete(ctx context.Context, userID string, entity EntityType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := entity.table()
	if err != nil {
		return err
	}

	args := append([]any{userID}, stringArgs(ids)...)
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE user_id = ? AND deleted_at IS NOT NULL AND id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func requireRow(res sql.Result, entity EntityType, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func nullString(value *string) sql.NullString {
	if value == nil || *value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
