package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/CrowderSoup/wiseflow/board"
	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/services"
)

// writeJSON wraps data in the {"status": "success", "data": ...} envelope.
func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps service errors to status codes. Anything unexpected is
// logged and reported as a server error.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		http.Error(w, "not authenticated", http.StatusUnauthorized)
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, board.ErrUnknownItem),
		errors.Is(err, board.ErrUnknownStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Error handling %s: %v", op, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(services.ErrInvalidInput, err)
	}
	return nil
}
