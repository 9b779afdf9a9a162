// Package api provides HTTP handlers for the Tranquili API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/tranquili/internal/achievement"
	"github.com/ashureev/tranquili/internal/companion"
	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/progress"
	"github.com/ashureev/tranquili/internal/store"
)

// Progress evaluates achievements for a user.
type Progress interface {
	Refresh(ctx context.Context, userID string) (progress.Result, error)
	Statuses(ctx context.Context, userID string) ([]achievement.Status, error)
}

// Conversation runs the chat companion for a user.
type Conversation interface {
	Send(ctx context.Context, userID, text string) (*companion.Exchange, error)
	History(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error)
}

// Handler serves the /api routes.
type Handler struct {
	repo             store.Repository
	progress         Progress
	chat             Conversation
	validator        *Validator
	companionEnabled bool
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(repo store.Repository, prog Progress, chat Conversation, companionEnabled bool) (*Handler, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}
	return &Handler{
		repo:             repo,
		progress:         prog,
		chat:             chat,
		validator:        v,
		companionEnabled: companionEnabled,
	}, nil
}

// RegisterRoutes registers the /api routes. Identity middleware must already
// be installed on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)

		r.Post("/moods", h.CreateMood)
		r.Get("/moods", h.ListMoods)

		r.Get("/achievements", h.ListAchievements)

		r.Post("/chat", h.SendChat)
		r.Get("/chat", h.ChatHistory)

		r.Post("/gratitude", h.CreateGratitude)
		r.Get("/gratitude", h.ListGratitude)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// queryLimit parses the limit query parameter, clamped to [1, max].
func queryLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

// unlockedOrEmpty keeps newly_unlocked a JSON array rather than null.
func unlockedOrEmpty(defs []achievement.Definition) []achievement.Definition {
	if defs == nil {
		return []achievement.Definition{}
	}
	return defs
}
