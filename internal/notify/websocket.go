package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/tranquili/internal/identity"
)

const (
	// DefaultKeepalive is the ping interval for idle sockets.
	DefaultKeepalive = 25 * time.Second
	writeTimeout     = 10 * time.Second
)

// WebSocketHandler streams a user's notifications over a WebSocket.
type WebSocketHandler struct {
	hub           *Hub
	keepalive     time.Duration
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, keepalive time.Duration, allowedOrigin string, isDev bool) *WebSocketHandler {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &WebSocketHandler{
		hub:           hub,
		keepalive:     keepalive,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP upgrades the connection, replays events after the `after` query
// parameter, then streams live events until either side goes away.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, `{"error": "after must be a non-negative event id"}`, http.StatusBadRequest)
			return
		}
		after = parsed
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	// Clients never send; CloseRead handles control frames and cancels ctx
	// once the peer disconnects.
	ctx := ws.CloseRead(r.Context())

	// Subscribe before reading the queue so nothing published in between is
	// lost. Duplicates are filtered by event id.
	sub := h.hub.Subscribe(userID)
	defer h.hub.Unsubscribe(sub)

	// An id this hub never issued comes from before a restart or a clock
	// step back. Replay everything queued instead of filtering on it.
	if lastID := h.hub.LastID(); after > lastID {
		slog.Info("Discarding unknown resume id", "user_id", userID, "after", after, "last_id", lastID)
		after = 0
	}

	slog.Info("Notification stream connected", "user_id", userID, "after", after)

	last := after
	for _, ev := range h.hub.Missed(userID, after) {
		if err := writeEvent(ctx, ws, ev); err != nil {
			slog.Debug("Failed to replay event", "error", err, "user_id", userID)
			return
		}
		last = ev.ID
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Notification stream disconnected", "user_id", userID)
			return
		case <-sub.Done():
			_ = ws.Close(websocket.StatusGoingAway, "user removed")
			return
		case ev := <-sub.C:
			if ev.ID <= last {
				continue
			}
			if err := writeEvent(ctx, ws, ev); err != nil {
				slog.Debug("Failed to write event", "error", err, "user_id", userID)
				return
			}
			last = ev.ID
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("Notification keepalive failed", "error", err, "user_id", userID)
				return
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeEvent(ctx context.Context, ws *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
