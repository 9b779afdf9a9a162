// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/store"
)

const (
	AnonCookieName   = "tranquili_anon_id"
	anonCookieMaxAge = 365 * 24 * time.Hour
	lastSeenTimeout  = 5 * time.Second
	// lastSeenInterval throttles last_seen_at writes for returning users.
	// Retention works in days, so minute precision is plenty.
	lastSeenInterval = time.Minute
	rollbackTimeout  = 5 * time.Second
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

var anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)

// NewUserHook runs once right after a user row is created.
type NewUserHook func(ctx context.Context, userID string) error

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns a copy of ctx carrying the user identity.
func WithUser(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, usernameKey, deriveUsername(userID))
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func deriveUsername(userID string) string {
	if len(userID) > 13 {
		return "anon-" + userID[len(userID)-8:]
	}
	return "anon-user"
}

// ensureUser returns the user row, creating it on first sight. It reports
// whether the user was created.
func ensureUser(ctx context.Context, repo store.Repository, userID string) (*domain.User, bool, error) {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	now := time.Now()
	user = &domain.User{
		UserID:     userID,
		Username:   deriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// runNewUserHooks runs hooks for a freshly created user. On failure the user
// row is removed again, so the next request with the same cookie recreates
// the user and re-runs every hook.
func runNewUserHooks(ctx context.Context, repo store.Repository, userID string, hooks []NewUserHook) error {
	for _, hook := range hooks {
		err := hook(ctx, userID)
		if err == nil {
			continue
		}

		rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		if delErr := repo.DeleteUser(rollbackCtx, userID); delErr != nil {
			slog.Error("Failed to roll back user after hook failure", "error", delErr, "user_id", userID)
		}
		return fmt.Errorf("new user hook: %w", err)
	}
	return nil
}

// touchLastSeen bumps last_seen_at at most once per lastSeenInterval.
func touchLastSeen(ctx context.Context, repo store.Repository, user *domain.User, now time.Time) {
	if now.Sub(user.LastSeenAt) < lastSeenInterval {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lastSeenTimeout)
	defer cancel()
	if err := repo.UpdateLastSeen(ctx, user.UserID, now); err != nil {
		slog.Warn("Failed to update last seen", "error", err, "user_id", user.UserID)
	}
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// getOrCreateAnonID returns the cookie identity, minting a new one when the
// cookie is absent or malformed. The cookie is refreshed either way.
func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

// Middleware injects anonymous per-device identity. The user row is created
// on first request and hooks run for brand new users. Returning users get
// their last_seen_at bumped, at most once a minute.
func Middleware(repo store.Repository, isDev bool, hooks ...NewUserHook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			user, created, err := ensureUser(r.Context(), repo, userID)
			if err != nil {
				slog.Error("Failed to initialize anonymous user", "error", err, "user_id", userID)
				http.Error(w, `{"error":"failed to initialize anonymous user"}`, http.StatusInternalServerError)
				return
			}

			if created {
				if err := runNewUserHooks(r.Context(), repo, userID, hooks); err != nil {
					slog.Error("Failed to initialize anonymous user", "error", err, "user_id", userID)
					http.Error(w, `{"error":"failed to initialize anonymous user"}`, http.StatusServiceUnavailable)
					return
				}
			} else {
				touchLastSeen(r.Context(), repo, user, time.Now())
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}
