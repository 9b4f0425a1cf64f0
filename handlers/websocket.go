package handlers

import (
	"context"
	"log"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/services"
)

// WebSocketHandler upgrades board views to websocket clients
type WebSocketHandler struct {
	hub      *services.Hub
	boards   *services.Boards
	store    *database.Store
	upgrader websocket.Upgrader
	opts     []services.PersisterOption
}

// NewWebSocketHandler accepts connections from allowedOrigins; "*" allows any
// origin.
func NewWebSocketHandler(hub *services.Hub, boards *services.Boards, store *database.Store, allowedOrigins []string, opts ...services.PersisterOption) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		boards: boards,
		store:  store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		opts: opts,
	}
}

// HandleWebSocket opens the board of the project named by the "project" slug,
// or of every project when it is empty.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := services.UserFromContext(r.Context())
	if err != nil {
		writeError(w, "websocket", err)
		return
	}

	var projectID string
	if slug := r.URL.Query().Get("project"); slug != "" {
		project, err := h.store.GetProjectBySlug(r.Context(), userID, slug)
		if err != nil {
			writeError(w, "websocket", err)
			return
		}
		projectID = project.ID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	// The connection outlives the upgrade request.
	client, err := services.NewClient(context.WithoutCancel(r.Context()), h.hub, conn, h.boards, projectID, h.opts...)
	if err != nil {
		log.Printf("Error opening board for %s: %v", userID, err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to load board"))
		conn.Close()
		return
	}

	client.Start()
}
