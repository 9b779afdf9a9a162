package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/identity"
)

type createMoodRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Mood string `json:"mood" validate:"required,mood"`
	Note string `json:"note" validate:"max=1000"`
}

// CreateMood handles POST /api/moods. The response carries any achievements
// unlocked by this check-in.
func (h *Handler) CreateMood(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req createMoodRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	entry := &domain.MoodEntry{
		UserID: userID,
		Date:   req.Date,
		Mood:   domain.Mood(req.Mood),
		Note:   req.Note,
	}
	if err := h.repo.AppendMood(r.Context(), entry); err != nil {
		slog.Error("Failed to store mood entry", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to store mood entry")
		return
	}

	res, err := h.progress.Refresh(r.Context(), userID)
	if err != nil {
		// The check-in is stored; unlocks catch up on the next refresh.
		slog.Error("Achievement refresh failed", "error", err, "user_id", userID)
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"entry":          entry,
		"newly_unlocked": unlockedOrEmpty(res.NewlyUnlocked),
	})
}

// ListMoods handles GET /api/moods. With from and to it returns the
// inclusive date range, otherwise the full log.
func (h *Handler) ListMoods(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	var (
		entries []domain.MoodEntry
		err     error
	)
	switch {
	case from == "" && to == "":
		entries, err = h.repo.ListMoods(r.Context(), userID)
	case !isDate(from) || !isDate(to):
		Error(w, http.StatusBadRequest, "from and to must both be YYYY-MM-DD dates")
		return
	case from > to:
		Error(w, http.StatusBadRequest, "from must not be after to")
		return
	default:
		entries, err = h.repo.ListMoodsInRange(r.Context(), userID, from, to)
	}
	if err != nil {
		slog.Error("Failed to list mood entries", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list mood entries")
		return
	}

	if entries == nil {
		entries = []domain.MoodEntry{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func isDate(s string) bool {
	_, err := time.Parse(domain.DateLayout, s)
	return err == nil
}
