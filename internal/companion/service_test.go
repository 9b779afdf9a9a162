package companion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/tranquili/internal/achievement"
	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/progress"
)

type fakeStore struct {
	mu   sync.Mutex
	msgs map[string][]domain.ChatMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{msgs: make(map[string][]domain.ChatMessage)}
}

func (f *fakeStore) AppendChatMessage(_ context.Context, msg *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[msg.UserID] = append(f.msgs[msg.UserID], *msg)
	return nil
}

func (f *fakeStore) ListChatMessages(_ context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.msgs[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.ChatMessage(nil), all...), nil
}

func (f *fakeStore) CountChatMessages(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs[userID]), nil
}

type stubResponder struct {
	reply string
	err   error
	got   []ReplyRequest
}

func (s *stubResponder) Reply(_ context.Context, req ReplyRequest) (string, error) {
	s.got = append(s.got, req)
	return s.reply, s.err
}

func (s *stubResponder) Close() error { return nil }

type stubRefresher struct {
	calls  int
	result progress.Result
	err    error
}

func (s *stubRefresher) Refresh(_ context.Context, _ string) (progress.Result, error) {
	s.calls++
	return s.result, s.err
}

func TestStartSeedsGreetingOnce(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, nil, nil, nil)

	require.NoError(t, svc.Start(ctx, "u1"))
	require.NoError(t, svc.Start(ctx, "u1"))

	msgs := st.msgs["u1"]
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleCompanion, msgs[0].Role)
	assert.Equal(t, Greeting, msgs[0].Text)
}

func TestStartConcurrentSeedsOnce(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Start(ctx, "u1")
		}()
	}
	wg.Wait()

	n, err := st.CountChatMessages(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSendStoresBothTurnsAndRefreshes(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	resp := &stubResponder{reply: "That sounds like a lot."}
	first, _ := achievement.Lookup(achievement.FirstChat)
	ref := &stubRefresher{result: progress.Result{NewlyUnlocked: []achievement.Definition{first}}}
	svc := NewService(st, resp, ref, nil)

	ex, err := svc.Send(ctx, "u1", "  rough day at work  ")
	require.NoError(t, err)

	assert.Equal(t, "rough day at work", ex.UserMessage.Text)
	assert.Equal(t, "That sounds like a lot.", ex.CompanionMessage.Text)
	assert.False(t, ex.Degraded)
	require.Len(t, ex.NewlyUnlocked, 1)
	assert.Equal(t, achievement.FirstChat, ex.NewlyUnlocked[0].ID)
	assert.Equal(t, 1, ref.calls)

	msgs := st.msgs["u1"]
	require.Len(t, msgs, 3, "greeting, user turn, companion turn")
	assert.Equal(t, Greeting, msgs[0].Text)
	assert.Equal(t, domain.RoleUser, msgs[1].Role)
	assert.Equal(t, domain.RoleCompanion, msgs[2].Role)

	require.Len(t, resp.got, 1)
	assert.Len(t, resp.got[0].History, 2)
	assert.Equal(t, "rough day at work", resp.got[0].History[1].Text)
}

func TestSendHistoryIsWindowed(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	resp := &stubResponder{reply: "ok"}
	svc := NewService(st, resp, nil, nil)

	for i := 0; i < 15; i++ {
		_, err := svc.Send(ctx, "u1", "hello")
		require.NoError(t, err)
	}
	last := resp.got[len(resp.got)-1]
	assert.Len(t, last.History, historyWindow)
}

func TestSendFallsBackWhenResponderFails(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, &stubResponder{err: errors.New("sidecar down")}, nil, nil)

	ex, err := svc.Send(ctx, "u1", "anyone there?")
	require.NoError(t, err)
	assert.True(t, ex.Degraded)
	assert.Equal(t, FallbackReply, ex.CompanionMessage.Text)
	assert.Len(t, st.msgs["u1"], 3)
}

func TestSendRefreshFailureKeepsExchange(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, &stubResponder{reply: "hi"}, &stubRefresher{err: errors.New("db")}, nil)

	ex, err := svc.Send(ctx, "u1", "hello")
	require.NoError(t, err)
	assert.Empty(t, ex.NewlyUnlocked)
	assert.Len(t, st.msgs["u1"], 3)
}

func TestSendRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, nil, nil, nil)

	_, err := svc.Send(ctx, "u1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Send(ctx, "u1", strings.Repeat("a", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	assert.Empty(t, st.msgs["u1"])
}

func TestSendRateLimited(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, nil, nil, NewRateLimiter(2, time.Minute))

	_, err := svc.Send(ctx, "u1", "one")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "u1", "two")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "u1", "three")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = svc.Send(ctx, "u2", "other user")
	assert.NoError(t, err)
}

func TestHistorySeedsGreeting(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := NewService(st, nil, nil, nil)

	msgs, err := svc.History(ctx, "u1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Text)
}

func TestEchoResponder(t *testing.T) {
	reply, err := EchoResponder{}.Reply(context.Background(), ReplyRequest{Message: " tired "})
	require.NoError(t, err)
	assert.Contains(t, reply, `"tired"`)
}
