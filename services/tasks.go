package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/storage"
)

// ErrInvalidInput marks a request the user has to fix.
var ErrInvalidInput = errors.New("invalid input")

// TaskStore is the part of the remote store task authoring uses.
type TaskStore interface {
	GetTask(ctx context.Context, userID, id string) (database.Task, error)
	CreateTask(ctx context.Context, userID string, input database.TaskInput) (database.Task, error)
	UpdateTask(ctx context.Context, userID, id string, input database.TaskInput) (database.Task, error)
	SetTaskCover(ctx context.Context, userID, id, url string) error
	ListSubtasks(ctx context.Context, userID, taskID string) ([]database.Subtask, error)
	CreateSubtask(ctx context.Context, userID, taskID string, input database.SubtaskInput, sortOrder int) (database.Subtask, error)
	UpdateSubtask(ctx context.Context, userID, id string, input database.SubtaskInput, sortOrder int) error
	SetSubtaskDone(ctx context.Context, userID, id string, done bool) error
	AddComment(ctx context.Context, userID, taskID, content string) (database.Comment, error)
	GetAttachment(ctx context.Context, userID, id string) (database.Attachment, error)
	AddAttachment(ctx context.Context, userID, taskID, fileName, fileURL string, size int64) (database.Attachment, error)
	SoftDelete(ctx context.Context, userID string, entity database.EntityType, id string) error
}

// ObjectStore uploads and removes task files.
type ObjectStore interface {
	ObjectRemover
	Upload(ctx context.Context, path string, r io.Reader) (string, error)
}

// Upload is a file sent along with a task, comment or attachment request.
type Upload struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// TaskDraft is a task as submitted by the editor.
type TaskDraft struct {
	database.TaskInput
	Subtasks []database.SubtaskInput
}

func (d TaskDraft) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status", ErrInvalidInput)
	}
	return nil
}

// Tasks creates and edits tasks and their comments, attachments and subtasks.
type Tasks struct {
	store    TaskStore
	objects  ObjectStore
	notifier Notifier
}

func NewTasks(store TaskStore, objects ObjectStore, notifier Notifier) *Tasks {
	return &Tasks{store: store, objects: objects, notifier: notifier}
}

// Create inserts the task at the end of its column, then its cover and
// subtasks. A failed cover upload keeps the task without an image.
func (t *Tasks) Create(ctx context.Context, draft TaskDraft, cover *Upload) (database.Task, error) {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return database.Task{}, err
	}
	if err := draft.validate(); err != nil {
		return database.Task{}, err
	}
	draft.Priority = database.NormalizePriority(string(draft.Priority))

	task, err := t.store.CreateTask(ctx, userID, draft.TaskInput)
	if err != nil {
		return database.Task{}, err
	}

	if cover != nil {
		url, err := t.upload(ctx, userID, storage.KindCovers, task.ID, cover)
		if err != nil {
			log.Printf("Cover upload failed, task %s saved without image: %v", task.ID, err)
		} else if err := t.store.SetTaskCover(ctx, userID, task.ID, url); err != nil {
			log.Printf("Error saving cover of task %s: %v", task.ID, err)
			removeObject(ctx, t.objects, url)
		}
	}

	sortOrder := 0
	for _, st := range draft.Subtasks {
		if strings.TrimSpace(st.Title) == "" {
			continue
		}
		if _, err := t.store.CreateSubtask(ctx, userID, task.ID, st, sortOrder); err != nil {
			return database.Task{}, err
		}
		sortOrder++
	}

	task, err = t.store.GetTask(ctx, userID, task.ID)
	if err != nil {
		return database.Task{}, err
	}
	t.changed(userID, task)
	return task, nil
}

// Edit rewrites a task. A new cover replaces the old one; removeCover clears
// it. Subtasks are synced to the draft: listed ids are updated in draft order,
// unlisted ones trashed and entries without an id created.
func (t *Tasks) Edit(ctx context.Context, id string, draft TaskDraft, cover *Upload, removeCover bool) (database.Task, error) {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return database.Task{}, err
	}
	if err := draft.validate(); err != nil {
		return database.Task{}, err
	}
	draft.Priority = database.NormalizePriority(string(draft.Priority))

	existing, err := t.store.GetTask(ctx, userID, id)
	if err != nil {
		return database.Task{}, err
	}

	var coverURL string
	if cover != nil {
		if coverURL, err = t.upload(ctx, userID, storage.KindCovers, id, cover); err != nil {
			return database.Task{}, err
		}
	}

	if _, err := t.store.UpdateTask(ctx, userID, id, draft.TaskInput); err != nil {
		return database.Task{}, err
	}

	switch {
	case cover != nil:
		if err := t.store.SetTaskCover(ctx, userID, id, coverURL); err != nil {
			return database.Task{}, err
		}
		removeObject(ctx, t.objects, existing.CoverURL)
	case removeCover && existing.CoverURL != "":
		if err := t.store.SetTaskCover(ctx, userID, id, ""); err != nil {
			return database.Task{}, err
		}
		removeObject(ctx, t.objects, existing.CoverURL)
	}

	if err := t.syncSubtasks(ctx, userID, id, draft.Subtasks); err != nil {
		return database.Task{}, err
	}

	task, err := t.store.GetTask(ctx, userID, id)
	if err != nil {
		return database.Task{}, err
	}
	t.changed(userID, task)
	return task, nil
}

func (t *Tasks) syncSubtasks(ctx context.Context, userID, taskID string, incoming []database.SubtaskInput) error {
	current, err := t.store.ListSubtasks(ctx, userID, taskID)
	if err != nil {
		return err
	}

	existing := make(map[string]bool, len(current))
	for _, st := range current {
		existing[st.ID] = true
	}
	keep := make(map[string]bool, len(incoming))
	for _, st := range incoming {
		if st.ID != "" {
			keep[st.ID] = true
		}
	}

	for _, st := range current {
		if !keep[st.ID] {
			if err := t.store.SoftDelete(ctx, userID, database.EntitySubtask, st.ID); err != nil {
				return err
			}
		}
	}

	for i, st := range incoming {
		if existing[st.ID] {
			if err := t.store.UpdateSubtask(ctx, userID, st.ID, st, i); err != nil {
				return err
			}
			continue
		}
		if _, err := t.store.CreateSubtask(ctx, userID, taskID, st, i); err != nil {
			return err
		}
	}
	return nil
}

// ToggleSubtask sets a subtask's completion flag.
func (t *Tasks) ToggleSubtask(ctx context.Context, id string, done bool) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}
	return t.store.SetSubtaskDone(ctx, userID, id, done)
}

func (t *Tasks) AddComment(ctx context.Context, taskID, content string) (database.Comment, error) {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return database.Comment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return database.Comment{}, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}
	if _, err := t.store.GetTask(ctx, userID, taskID); err != nil {
		return database.Comment{}, err
	}
	return t.store.AddComment(ctx, userID, taskID, content)
}

func (t *Tasks) DeleteComment(ctx context.Context, id string) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}
	return t.store.SoftDelete(ctx, userID, database.EntityComment, id)
}

// AddAttachment stores the file under the task and records it. The file is
// removed again if the record cannot be written.
func (t *Tasks) AddAttachment(ctx context.Context, taskID string, file Upload) (database.Attachment, error) {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return database.Attachment{}, err
	}
	if file.FileName == "" || file.Body == nil {
		return database.Attachment{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if _, err := t.store.GetTask(ctx, userID, taskID); err != nil {
		return database.Attachment{}, err
	}

	url, err := t.upload(ctx, userID, storage.KindAttachments, taskID, &file)
	if err != nil {
		return database.Attachment{}, err
	}
	a, err := t.store.AddAttachment(ctx, userID, taskID, file.FileName, url, file.Size)
	if err != nil {
		removeObject(ctx, t.objects, url)
		return database.Attachment{}, err
	}
	return a, nil
}

// DeleteAttachment trashes the record, then removes its file. The file
// removal is best effort.
func (t *Tasks) DeleteAttachment(ctx context.Context, id string) error {
	userID, err := UserFromContext(ctx)
	if err != nil {
		return err
	}
	a, err := t.store.GetAttachment(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := t.store.SoftDelete(ctx, userID, database.EntityAttachment, id); err != nil {
		return err
	}
	removeObject(ctx, t.objects, a.FileURL)
	return nil
}

func (t *Tasks) upload(ctx context.Context, userID, kind, taskID string, file *Upload) (string, error) {
	if t.objects == nil {
		return "", errors.New("file uploads are not configured")
	}
	return t.objects.Upload(ctx, storage.ObjectPath(userID, kind, taskID, file.FileName), file.Body)
}

func (t *Tasks) changed(userID string, task database.Task) {
	if t.notifier == nil {
		return
	}
	event := Event{Type: EventTasksChanged, TaskIDs: []string{task.ID}}
	if task.ProjectID != nil {
		event.ProjectID = *task.ProjectID
	}
	t.notifier.Notify(userID, event)
}
