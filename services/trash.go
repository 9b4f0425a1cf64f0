package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/CrowderSoup/wiseflow/database"
)

// Change notifications sent to a user's open boards.
const (
	EventProjectUpdated = "project.updated"
	EventTasksChanged   = "tasks.changed"
	EventBoardChanged   = "board.changed"
)

// UnassignedGroup is the trash group holding tasks without a project.
const UnassignedGroup = "unassigned"

// DefaultTrashRetention is how long trashed records are kept before a purge.
const DefaultTrashRetention = 30 * 24 * time.Hour

type Event struct {
	Type      string   `json:"type"`
	ProjectID string   `json:"project_id,omitempty"`
	TaskIDs   []string `json:"task_ids,omitempty"`
}

// Notifier delivers change events to one user's connected views.
type Notifier interface {
	Notify(userID string, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(userID string, event Event)

func (f NotifierFunc) Notify(userID string, event Event) { f(userID, event) }

// TrashStore is the part of the remote store the trash workflow uses.
type TrashStore interface {
	GetTask(ctx context.Context, userID, id string) (database.Task, error)
	ListComments(ctx context.Context, userID, taskID string) ([]database.Comment, error)
	ListAttachments(ctx context.Context, userID, taskID string) ([]database.Attachment, error)
	ListSubtasks(ctx context.Context, userID, taskID string) ([]database.Subtask, error)
	SoftDelete(ctx context.Context, userID string, entity database.EntityType, id string) error
	Restore(ctx context.Context, userID string, entity database.EntityType, ids []string) error
	HardDelete(ctx context.Context, userID string, entity database.EntityType, ids []string) error
	ListTrashedTasks(ctx context.Context, userID string) ([]database.TrashedTask, error)
	ListTrashedProjects(ctx context.Context, userID string) ([]database.Project, error)
	ListExpiredTrash(ctx context.Context, before time.Time) ([]database.TrashRef, error)
}

// ObjectRemover deletes stored files by their public URL.
type ObjectRemover interface {
	PathFromURL(url string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Trash moves tasks and projects in and out of the trash.
type Trash struct {
	store    TrashStore
	objects  ObjectRemover
	notifier Notifier
	now      func() time.Time
}

func NewTrash(store TrashStore, objects ObjectRemover, notifier Notifier) *Trash {
	return &Trash{store: store, objects: objects, notifier: notifier, now: time.Now}
}

// CascadeDelete trashes a task and everything hanging off it: comments, then
// attachments (their files are removed first), then subtasks, then the cover
// file, and finally the task itself. The steps are not atomic. File removal
// failures are logged and skipped; a failed record update stops the cascade
// and is returned.
func (t *Trash) CascadeDelete(ctx context.Context, taskID string) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}

	task, err := t.store.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}

	comments, err := t.store.ListComments(ctx, userID, taskID)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if err := t.store.SoftDelete(ctx, userID, database.EntityComment, c.ID); err != nil {
			return err
		}
	}

	attachments, err := t.store.ListAttachments(ctx, userID, taskID)
	if err != nil {
		return err
	}
	for _, a := range attachments {
		t.removeObject(ctx, a.FileURL)
		if err := t.store.SoftDelete(ctx, userID, database.EntityAttachment, a.ID); err != nil {
			return err
		}
	}

	subtasks, err := t.store.ListSubtasks(ctx, userID, taskID)
	if err != nil {
		return err
	}
	for _, st := range subtasks {
		if err := t.store.SoftDelete(ctx, userID, database.EntitySubtask, st.ID); err != nil {
			return err
		}
	}

	if task.CoverURL != "" {
		t.removeObject(ctx, task.CoverURL)
	}

	if err := t.store.SoftDelete(ctx, userID, database.EntityTask, taskID); err != nil {
		return err
	}

	event := Event{Type: EventTasksChanged, TaskIDs: []string{taskID}}
	if task.ProjectID != nil {
		event.ProjectID = *task.ProjectID
	}
	t.notify(userID, event)
	return nil
}

// TrashProject moves a project to the trash. Its tasks keep their own state.
func (t *Trash) TrashProject(ctx context.Context, projectID string) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}
	if err := t.store.SoftDelete(ctx, userID, database.EntityProject, projectID); err != nil {
		return err
	}
	t.notify(userID, Event{Type: EventProjectUpdated, ProjectID: projectID})
	return nil
}

// Restore brings projects and tasks back. The two are independent: restoring
// a project leaves its trashed tasks alone and a task can come back while its
// project stays trashed. Both are attempted even if one fails.
func (t *Trash) Restore(ctx context.Context, projectIDs, taskIDs []string) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}

	projectErr := t.store.Restore(ctx, userID, database.EntityProject, projectIDs)
	taskErr := t.store.Restore(ctx, userID, database.EntityTask, taskIDs)

	if projectErr == nil && len(projectIDs) > 0 {
		t.notify(userID, Event{Type: EventProjectUpdated})
	}
	if taskErr == nil && len(taskIDs) > 0 {
		t.notify(userID, Event{Type: EventTasksChanged, TaskIDs: taskIDs})
	}
	return errors.Join(projectErr, taskErr)
}

// PermanentDelete removes tasks, then projects, for good. Dependent records
// are left to the store's own foreign key rules.
func (t *Trash) PermanentDelete(ctx context.Context, taskIDs, projectIDs []string) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}
	if err := t.store.HardDelete(ctx, userID, database.EntityTask, taskIDs); err != nil {
		return err
	}
	return t.store.HardDelete(ctx, userID, database.EntityProject, projectIDs)
}

// PurgeExpired permanently deletes every user's records trashed longer than
// retention ago and returns how many were removed.
func (t *Trash) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultTrashRetention
	}
	refs, err := t.store.ListExpiredTrash(ctx, t.now().Add(-retention))
	if err != nil {
		return 0, err
	}

	type key struct {
		userID string
		entity database.EntityType
	}
	grouped := map[key][]string{}
	seen := map[string]bool{}
	var users []string
	for _, ref := range refs {
		if !seen[ref.UserID] {
			seen[ref.UserID] = true
			users = append(users, ref.UserID)
		}
		k := key{ref.UserID, ref.Entity}
		grouped[k] = append(grouped[k], ref.ID)
	}

	purged := 0
	for _, userID := range users {
		userCtx := WithUser(ctx, userID)
		tasks := grouped[key{userID, database.EntityTask}]
		projects := grouped[key{userID, database.EntityProject}]
		if err := t.PermanentDelete(userCtx, tasks, projects); err != nil {
			return purged, fmt.Errorf("failed to purge trash of %s: %w", userID, err)
		}
		purged += len(tasks) + len(projects)
	}
	return purged, nil
}

// TrashGroup is one project's section of the trash view.
type TrashGroup struct {
	ProjectID        string       `json:"project_id"`
	ProjectName      string       `json:"project_name"`
	ProjectIcon      string       `json:"project_icon"`
	IsProjectDeleted bool         `json:"is_project_deleted"`
	DeletedAgo       string       `json:"deleted_ago,omitempty"`
	Tasks            []TrashEntry `json:"tasks"`
}

type TrashEntry struct {
	database.TrashedTask
	DeletedAgo string `json:"deleted_ago"`
}

// List builds the trash view: trashed projects first, then one group per
// project owning trashed tasks, in most recently trashed order.
func (t *Trash) List(ctx context.Context) ([]TrashGroup, error) {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := t.store.ListTrashedProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := t.store.ListTrashedTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	groups := []TrashGroup{}
	index := map[string]int{}
	for _, p := range projects {
		index[p.ID] = len(groups)
		groups = append(groups, TrashGroup{
			ProjectID:        p.ID,
			ProjectName:      p.Name,
			ProjectIcon:      orDefault(p.Icon, "folder"),
			IsProjectDeleted: true,
			DeletedAgo:       ago(p.DeletedAt, now),
			Tasks:            []TrashEntry{},
		})
	}

	for _, task := range tasks {
		pid := UnassignedGroup
		name := "No Project"
		if task.ProjectID != nil {
			pid = *task.ProjectID
			name = orDefault(task.ProjectName, "Unknown Project")
		}
		i, ok := index[pid]
		if !ok {
			i = len(groups)
			index[pid] = i
			groups = append(groups, TrashGroup{
				ProjectID:   pid,
				ProjectName: name,
				ProjectIcon: orDefault(task.ProjectIcon, "folder"),
				Tasks:       []TrashEntry{},
			})
		}
		groups[i].Tasks = append(groups[i].Tasks, TrashEntry{TrashedTask: task, DeletedAgo: ago(task.DeletedAt, now)})
	}
	return groups, nil
}

func (t *Trash) removeObject(ctx context.Context, url string) {
	removeObject(ctx, t.objects, url)
}

// removeObject deletes the file behind url. Failures are logged only.
func removeObject(ctx context.Context, objects ObjectRemover, url string) {
	if objects == nil || url == "" {
		return
	}
	path, err := objects.PathFromURL(url)
	if err != nil {
		log.Printf("Skipping file cleanup for %s: %v", url, err)
		return
	}
	if err := objects.Delete(ctx, path); err != nil {
		log.Printf("Error deleting file %s: %v", path, err)
	}
}

func (t *Trash) notify(userID string, event Event) {
	if t.notifier != nil {
		t.notifier.Notify(userID, event)
	}
}

func ago(when *time.Time, now time.Time) string {
	if when == nil {
		return ""
	}
	return humanize.RelTime(*when, now, "ago", "from now")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
