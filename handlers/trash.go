package handlers

import (
	"fmt"
	"net/http"

	"github.com/CrowderSoup/wiseflow/services"
)

// TrashHandler lists, restores and permanently deletes trashed items
type TrashHandler struct {
	trash *services.Trash
}

func NewTrashHandler(trash *services.Trash) *TrashHandler {
	return &TrashHandler{trash: trash}
}

type trashSelection struct {
	ProjectIDs []string `json:"project_ids"`
	TaskIDs    []string `json:"task_ids"`
}

func (s trashSelection) validate() error {
	if len(s.ProjectIDs) == 0 && len(s.TaskIDs) == 0 {
		return fmt.Errorf("%w: nothing selected", services.ErrInvalidInput)
	}
	return nil
}

func (h *TrashHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.trash.List(r.Context())
	if err != nil {
		writeError(w, "list trash", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *TrashHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var sel trashSelection
	if err := decodeJSON(r, &sel); err != nil {
		writeError(w, "restore", err)
		return
	}
	if err := sel.validate(); err != nil {
		writeError(w, "restore", err)
		return
	}
	if err := h.trash.Restore(r.Context(), sel.ProjectIDs, sel.TaskIDs); err != nil {
		writeError(w, "restore", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Purge permanently deletes the selected items. Only trashed rows are removed.
func (h *TrashHandler) Purge(w http.ResponseWriter, r *http.Request) {
	var sel trashSelection
	if err := decodeJSON(r, &sel); err != nil {
		writeError(w, "purge", err)
		return
	}
	if err := sel.validate(); err != nil {
		writeError(w, "purge", err)
		return
	}
	if err := h.trash.PermanentDelete(r.Context(), sel.TaskIDs, sel.ProjectIDs); err != nil {
		writeError(w, "purge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
