package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/services"
)

// maxUploadMemory is how much of a multipart body is kept in memory; the
// rest spills to temporary files.
const maxUploadMemory = 32 << 20

// TaskHandler handles task, comment, attachment and subtask endpoints
type TaskHandler struct {
	tasks *services.Tasks
	trash *services.Trash
}

func NewTaskHandler(tasks *services.Tasks, trash *services.Trash) *TaskHandler {
	return &TaskHandler{tasks: tasks, trash: trash}
}

// taskRequest is the editor's payload, sent as a JSON body or as the "data"
// field of a multipart form carrying a "cover" file.
type taskRequest struct {
	ProjectID   *string                 `json:"project_id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Status      database.Status         `json:"status"`
	Priority    string                  `json:"priority"`
	Category    string                  `json:"category"`
	DueDate     *string                 `json:"due_date"`
	Subtasks    []database.SubtaskInput `json:"subtasks"`
	RemoveCover bool                    `json:"remove_cover"`
}

func (t taskRequest) draft() services.TaskDraft {
	projectID := t.ProjectID
	if projectID != nil && *projectID == "" {
		projectID = nil
	}
	return services.TaskDraft{
		TaskInput: database.TaskInput{
			ProjectID:   projectID,
			Title:       strings.TrimSpace(t.Title),
			Description: t.Description,
			Status:      t.Status,
			Priority:    database.Priority(t.Priority),
			Category:    t.Category,
			DueDate:     t.DueDate,
		},
		Subtasks: t.Subtasks,
	}
}

// openedFile is an upload whose file must be closed once the request is done.
type openedFile struct {
	upload *services.Upload
	file   multipart.File
}

func (o *openedFile) Close() {
	if o != nil && o.file != nil {
		o.file.Close()
	}
}

func formFile(r *http.Request, field string) (*openedFile, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(services.ErrInvalidInput, err)
	}
	return &openedFile{
		upload: &services.Upload{FileName: header.Filename, Size: header.Size, Body: file},
		file:   file,
	}, nil
}

func (o *openedFile) Upload() *services.Upload {
	if o == nil {
		return nil
	}
	return o.upload
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readTask decodes the task payload and its optional cover.
func readTask(r *http.Request) (taskRequest, *openedFile, error) {
	var req taskRequest
	if !isMultipart(r) {
		err := decodeJSON(r, &req)
		return req, nil, err
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return req, nil, errors.Join(services.ErrInvalidInput, err)
	}
	if err := json.Unmarshal([]byte(r.FormValue("data")), &req); err != nil {
		return req, nil, errors.Join(services.ErrInvalidInput, err)
	}
	if v := r.FormValue("remove_cover"); v != "" {
		req.RemoveCover, _ = strconv.ParseBool(v)
	}
	cover, err := formFile(r, "cover")
	return req, cover, err
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, cover, err := readTask(r)
	defer cover.Close()
	if err != nil {
		writeError(w, "create task", err)
		return
	}

	task, err := h.tasks.Create(r.Context(), req.draft(), cover.Upload())
	if err != nil {
		writeError(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, cover, err := readTask(r)
	defer cover.Close()
	if err != nil {
		writeError(w, "update task", err)
		return
	}

	task, err := h.tasks.Edit(r.Context(), mux.Vars(r)["id"], req.draft(), cover.Upload(), req.RemoveCover)
	if err != nil {
		writeError(w, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Delete trashes the task with its comments, attachments and subtasks. Any
// failure is reported so the detail view can stay open.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.trash.CascadeDelete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "add comment", err)
		return
	}
	comment, err := h.tasks.AddComment(r.Context(), mux.Vars(r)["id"], req.Content)
	if err != nil {
		writeError(w, "add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *TaskHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteComment(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, "delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attachmentResponse struct {
	database.Attachment
	SizeLabel string `json:"size_label,omitempty"`
}

func (h *TaskHandler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, "add attachment", errors.Join(services.ErrInvalidInput, err))
		return
	}
	file, err := formFile(r, "file")
	defer file.Close()
	if err != nil {
		writeError(w, "add attachment", err)
		return
	}
	if file == nil {
		writeError(w, "add attachment", fmt.Errorf("%w: file is required", services.ErrInvalidInput))
		return
	}

	a, err := h.tasks.AddAttachment(r.Context(), mux.Vars(r)["id"], *file.Upload())
	if err != nil {
		writeError(w, "add attachment", err)
		return
	}
	resp := attachmentResponse{Attachment: a}
	if a.FileSize != nil {
		resp.SizeLabel = humanize.Bytes(uint64(*a.FileSize))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *TaskHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteAttachment(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, "delete attachment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleSubtask sets the completion flag of a subtask.
func (h *TaskHandler) ToggleSubtask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsDone *bool `json:"is_done"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "toggle subtask", err)
		return
	}
	if req.IsDone == nil {
		writeError(w, "toggle subtask", fmt.Errorf("%w: is_done is required", services.ErrInvalidInput))
		return
	}
	if err := h.tasks.ToggleSubtask(r.Context(), mux.Vars(r)["id"], *req.IsDone); err != nil {
		writeError(w, "toggle subtask", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
