package handle

import (
	"context"
	"net/http"
	"time"
)

func (h *Handle) Health(w http.ResponseWriter, r *http.Request) {
	status := "not configured"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status = "disconnected: " + err.Error()
		} else {
			status = "connected"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"message":  "AI Examiner API is running",
		"database": status,
	})
}
