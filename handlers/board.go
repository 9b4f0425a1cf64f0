package handlers

import (
	"net/http"

	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/services"
)

// BoardHandler accepts explicit position batches from views that do not
// drag over the websocket.
type BoardHandler struct {
	boards *services.Boards
}

func NewBoardHandler(boards *services.Boards) *BoardHandler {
	return &BoardHandler{boards: boards}
}

// SavePositions writes absolute (status, position) pairs. Repeating a batch
// is harmless.
func (h *BoardHandler) SavePositions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []database.PositionUpdate `json:"updates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "save positions", err)
		return
	}
	if err := h.boards.SavePositions(r.Context(), req.Updates); err != nil {
		writeError(w, "save positions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(req.Updates)})
}
