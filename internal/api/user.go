package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/identity"
)

// GetMe returns the current user's information.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      user.UserID,
		"username":     user.Username,
		"created_at":   user.CreatedAt,
		"last_seen_at": user.LastSeenAt,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"companion_enabled": h.companionEnabled,
		"moods":             domain.Moods(),
		"date_layout":       domain.DateLayout,
	})
}
