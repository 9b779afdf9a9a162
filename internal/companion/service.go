package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/tranquili/internal/achievement"
	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/progress"
	"github.com/ashureev/tranquili/internal/shared"
)

// Greeting is the companion message seeded into every new conversation.
const Greeting = "Hi, I'm your Tranquili companion. How are you feeling today?"

// FallbackReply is stored when the responder fails so the turn still gets an
// answer.
const FallbackReply = "I'm having trouble finding the right words right now. I'm still here with you, could you tell me a little more?"

// historyWindow is how many recent turns the responder sees.
const historyWindow = 20

// MaxMessageLength bounds a single user message, in runes.
const MaxMessageLength = 2000

var (
	// ErrRateLimited is returned when a user sends too many messages.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrEmptyMessage is returned for blank messages.
	ErrEmptyMessage = errors.New("message is required")
	// ErrMessageTooLong is returned when a message exceeds MaxMessageLength.
	ErrMessageTooLong = errors.New("message is too long")
)

// Store is the subset of the repository used by conversations.
type Store interface {
	AppendChatMessage(ctx context.Context, msg *domain.ChatMessage) error
	ListChatMessages(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error)
	CountChatMessages(ctx context.Context, userID string) (int, error)
}

// Refresher re-evaluates achievements after the chat count changes.
type Refresher interface {
	Refresh(ctx context.Context, userID string) (progress.Result, error)
}

// Exchange is the outcome of a single Send.
type Exchange struct {
	UserMessage      domain.ChatMessage       `json:"user_message"`
	CompanionMessage domain.ChatMessage       `json:"companion_message"`
	NewlyUnlocked    []achievement.Definition `json:"newly_unlocked"`
	// Degraded is true when the fallback reply was used.
	Degraded bool `json:"degraded"`
}

// Service stores conversation turns and asks the responder for replies.
type Service struct {
	store     Store
	responder Responder
	refresher Refresher
	limiter   *RateLimiter
	seedLocks shared.KeyedMutex
	now       func() time.Time
}

// NewService creates a conversation service. limiter and refresher may be nil.
func NewService(store Store, responder Responder, refresher Refresher, limiter *RateLimiter) *Service {
	if responder == nil {
		responder = EchoResponder{}
	}
	return &Service{
		store:     store,
		responder: responder,
		refresher: refresher,
		limiter:   limiter,
		now:       time.Now,
	}
}

// Start seeds the greeting when the user has no messages yet. Repeated calls
// are no-ops.
func (s *Service) Start(ctx context.Context, userID string) error {
	unlock := s.seedLocks.Lock(userID)
	defer unlock()

	n, err := s.store.CountChatMessages(ctx, userID)
	if err != nil {
		return fmt.Errorf("count chat messages: %w", err)
	}
	if n > 0 {
		return nil
	}

	greeting := &domain.ChatMessage{
		UserID:    userID,
		Role:      domain.RoleCompanion,
		Text:      Greeting,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendChatMessage(ctx, greeting); err != nil {
		return fmt.Errorf("seed greeting: %w", err)
	}
	slog.Debug("conversation started", "user_id", userID)
	return nil
}

// Send stores a user turn, obtains and stores the companion's reply, then
// refreshes achievements.
func (s *Service) Send(ctx context.Context, userID, text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(text)) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return nil, ErrRateLimited
	}

	if err := s.Start(ctx, userID); err != nil {
		return nil, err
	}

	log := slog.With("user_id", userID)

	userMsg := domain.ChatMessage{
		UserID:    userID,
		Role:      domain.RoleUser,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendChatMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	history, err := s.store.ListChatMessages(ctx, userID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	ex := &Exchange{UserMessage: userMsg}

	reply, err := s.responder.Reply(ctx, ReplyRequest{
		UserID:  userID,
		Message: text,
		History: history,
	})
	if err != nil {
		log.Warn("companion reply failed, using fallback", "error", err)
		reply = FallbackReply
		ex.Degraded = true
	}

	ex.CompanionMessage = domain.ChatMessage{
		UserID:    userID,
		Role:      domain.RoleCompanion,
		Text:      reply,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendChatMessage(ctx, &ex.CompanionMessage); err != nil {
		return nil, fmt.Errorf("append companion message: %w", err)
	}

	if s.refresher != nil {
		res, err := s.refresher.Refresh(ctx, userID)
		if err != nil {
			// The exchange is stored; the next refresh will catch up.
			log.Error("achievement refresh failed", "error", err)
		} else {
			ex.NewlyUnlocked = res.NewlyUnlocked
		}
	}

	log.Info("chat exchange stored", "message_length", len(text), "degraded", ex.Degraded)
	return ex, nil
}

// History returns up to limit recent messages, oldest first. The greeting is
// seeded first so a new user always sees it.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	if err := s.Start(ctx, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListChatMessages(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return msgs, nil
}

// Forget drops per-user state held in memory.
func (s *Service) Forget(userID string) {
	s.seedLocks.Forget(userID)
	if s.limiter != nil {
		s.limiter.Forget(userID)
	}
}

// Close releases the responder.
func (s *Service) Close() error {
	return s.responder.Close()
}
