package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/services"
)

// ProjectHandler handles project endpoints and the board of a project
type ProjectHandler struct {
	store    *database.Store
	boards   *services.Boards
	trash    *services.Trash
	notifier services.Notifier
}

func NewProjectHandler(store *database.Store, boards *services.Boards, trash *services.Trash, notifier services.Notifier) *ProjectHandler {
	return &ProjectHandler{
		store:    store,
		boards:   boards,
		trash:    trash,
		notifier: notifier,
	}
}

type projectRequest struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

func (p projectRequest) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", services.ErrInvalidInput)
	}
	return nil
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := services.UserFromContext(r.Context())
	if err != nil {
		writeError(w, "list projects", err)
		return
	}
	projects, err := h.store.ListProjects(r.Context(), userID)
	if err != nil {
		writeError(w, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := services.UserFromContext(r.Context())
	if err != nil {
		writeError(w, "create project", err)
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "create project", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, "create project", err)
		return
	}

	project, err := h.store.CreateProject(r.Context(), userID, strings.TrimSpace(req.Name), req.Icon, req.Description)
	if err != nil {
		writeError(w, "create project", err)
		return
	}
	h.notify(userID, project.ID)
	writeJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := services.UserFromContext(r.Context())
	if err != nil {
		writeError(w, "update project", err)
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "update project", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, "update project", err)
		return
	}

	id := mux.Vars(r)["id"]
	project, err := h.store.UpdateProject(r.Context(), userID, id, strings.TrimSpace(req.Name), req.Icon, req.Description)
	if err != nil {
		writeError(w, "update project", err)
		return
	}
	h.notify(userID, project.ID)
	writeJSON(w, http.StatusOK, project)
}

// Delete moves the project to the trash.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.trash.TrashProject(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, "trash project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Board returns the project found by slug with its tasks grouped into columns.
func (h *ProjectHandler) Board(w http.ResponseWriter, r *http.Request) {
	userID, err := services.UserFromContext(r.Context())
	if err != nil {
		writeError(w, "load board", err)
		return
	}
	project, err := h.store.GetProjectBySlug(r.Context(), userID, mux.Vars(r)["slug"])
	if err != nil {
		writeError(w, "load board", err)
		return
	}
	cols, err := h.boards.Load(r.Context(), project.ID)
	if err != nil {
		writeError(w, "load board", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project": project,
		"columns": cols,
	})
}

func (h *ProjectHandler) notify(userID, projectID string) {
	if h.notifier != nil {
		h.notifier.Notify(userID, services.Event{Type: services.EventProjectUpdated, ProjectID: projectID})
	}
}
