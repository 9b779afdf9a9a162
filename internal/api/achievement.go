package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/tranquili/internal/identity"
)

// ListAchievements handles GET /api/achievements. Statuses come back in
// catalog order.
func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	statuses, err := h.progress.Statuses(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to evaluate achievements", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to evaluate achievements")
		return
	}

	unlocked := 0
	for _, s := range statuses {
		if s.Unlocked {
			unlocked++
		}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"achievements": statuses,
		"unlocked":     unlocked,
		"total":        len(statuses),
	})
}
