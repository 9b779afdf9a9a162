package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/tranquili/internal/companion"
	"github.com/ashureev/tranquili/internal/identity"
)

const (
	defaultChatHistory = 50
	maxChatHistory     = 200
)

type sendChatRequest struct {
	Message string `json:"message" validate:"required"`
}

// SendChat handles POST /api/chat.
func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req sendChatRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ex, err := h.chat.Send(r.Context(), userID, req.Message)
	switch {
	case errors.Is(err, companion.ErrRateLimited):
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	case errors.Is(err, companion.ErrEmptyMessage), errors.Is(err, companion.ErrMessageTooLong):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("Chat exchange failed", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	ex.NewlyUnlocked = unlockedOrEmpty(ex.NewlyUnlocked)
	JSON(w, http.StatusOK, ex)
}

// ChatHistory handles GET /api/chat.
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	limit, err := queryLimit(r, defaultChatHistory, maxChatHistory)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.chat.History(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load chat history")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}
