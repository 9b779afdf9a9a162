package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/identity"
)

const (
	defaultGratitudeLimit = 30
	maxGratitudeLimit     = 365
)

type createGratitudeRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Text string `json:"text" validate:"required,max=1000"`
}

// CreateGratitude handles POST /api/gratitude.
func (h *Handler) CreateGratitude(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req createGratitudeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	entry := &domain.GratitudeEntry{
		UserID: userID,
		Date:   req.Date,
		Text:   req.Text,
	}
	if err := h.repo.AppendGratitude(r.Context(), entry); err != nil {
		slog.Error("Failed to store gratitude entry", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to store gratitude entry")
		return
	}
	JSON(w, http.StatusCreated, entry)
}

// ListGratitude handles GET /api/gratitude, newest first.
func (h *Handler) ListGratitude(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	limit, err := queryLimit(r, defaultGratitudeLimit, maxGratitudeLimit)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.repo.ListGratitude(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list gratitude entries", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list gratitude entries")
		return
	}
	if entries == nil {
		entries = []domain.GratitudeEntry{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
