package database

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Status is the board column a task lives in.
type Status int

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusDone
	StatusCancel
)

// NumStatuses is the number of board columns.
const NumStatuses = 4

var statusNames = [NumStatuses]string{"todo", "in_progress", "done", "cancel"}

// Statuses returns every status in column order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone, StatusCancel}
}

func (s Status) Valid() bool {
	return s >= 0 && int(s) < NumStatuses
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus accepts the wire names ("todo", "in_progress", "done", "cancel").
func ParseStatus(value string) (Status, error) {
	v := strings.TrimSpace(strings.ToLower(value))
	for i, name := range statusNames {
		if v == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", value)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return statusNames[s], nil
}

func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// NormalizePriority maps free-form input to a known priority, defaulting to Medium.
func NormalizePriority(value string) Priority {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

type Task struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ProjectID        *string    `json:"project_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Status           Status     `json:"status"`
	Priority         Priority   `json:"priority"`
	Category         string     `json:"category"`
	DueDate          *string    `json:"due_date"`
	Position         int        `json:"position"`
	CoverURL         string     `json:"cover_url,omitempty"`
	CommentsCount    int        `json:"comments_count"`
	AttachmentsCount int        `json:"attachments_count"`
	Subtasks         []Subtask  `json:"subtasks"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

type Subtask struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	Title     string     `json:"title"`
	IsDone    bool       `json:"is_done"`
	SortOrder int        `json:"sort_order"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

type Project struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Icon        string     `json:"icon"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

type Comment struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TaskID    string     `json:"task_id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

type Attachment struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TaskID    string     `json:"task_id"`
	FileName  string     `json:"file_name"`
	FileURL   string     `json:"file_url"`
	FileSize  *int64     `json:"file_size"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// TrashedTask is a soft-deleted task together with the project it belonged to.
type TrashedTask struct {
	Task
	ProjectName    string `json:"project_name,omitempty"`
	ProjectIcon    string `json:"project_icon,omitempty"`
	ProjectTrashed bool   `json:"project_trashed"`
}

// EntityType names every soft-deletable record kind.
type EntityType string

const (
	EntityProject    EntityType = "project"
	EntityTask       EntityType = "task"
	EntityComment    EntityType = "comment"
	EntityAttachment EntityType = "attachment"
	EntitySubtask    EntityType = "subtask"
)

var entityTables = map[EntityType]string{
	EntityProject:    "projects",
	EntityTask:       "tasks",
	EntityComment:    "task_comments",
	EntityAttachment: "task_attachments",
	EntitySubtask:    "task_subtasks",
}

func (e EntityType) table() (string, error) {
	table, ok := entityTables[e]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", string(e))
	}
	return table, nil
}

// PositionUpdate is one persisted (task, column, rank) triple.
type PositionUpdate struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Position int    `json:"position"`
}
