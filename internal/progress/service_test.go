package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/tranquili/internal/achievement"
	"github.com/ashureev/tranquili/internal/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	moods     map[string][]domain.MoodEntry
	chats     map[string]int
	baselines map[string]*domain.AchievementBaseline
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		moods:     make(map[string][]domain.MoodEntry),
		chats:     make(map[string]int),
		baselines: make(map[string]*domain.AchievementBaseline),
	}
}

func (f *fakeStore) addMood(userID, date string, mood domain.Mood) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moods[userID] = append(f.moods[userID], domain.MoodEntry{UserID: userID, Date: date, Mood: mood})
}

func (f *fakeStore) ListMoods(_ context.Context, userID string) ([]domain.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.MoodEntry(nil), f.moods[userID]...), nil
}

func (f *fakeStore) CountChatMessages(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[userID], nil
}

func (f *fakeStore) GetBaseline(_ context.Context, userID string) (*domain.AchievementBaseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.baselines[userID]
	if b == nil {
		return nil, nil
	}
	copy := *b
	copy.Unlocked = append([]string(nil), b.Unlocked...)
	return &copy, nil
}

func (f *fakeStore) SaveBaseline(_ context.Context, baseline *domain.AchievementBaseline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *baseline
	f.baselines[baseline.UserID] = &copy
	return nil
}

type published struct {
	userID string
	ids    []string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *fakeNotifier) Publish(_ context.Context, userID string, defs []achievement.Definition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	n.events = append(n.events, published{userID: userID, ids: ids})
}

func (n *fakeNotifier) all() []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]published(nil), n.events...)
}

func TestRefreshFirstCallSyncsSilently(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.addMood("u1", "2024-01-01", domain.MoodHappy)
	st.addMood("u1", "2024-01-02", domain.MoodCalm)
	st.addMood("u1", "2024-01-03", domain.MoodSad)
	st.chats["u1"] = 4
	notifier := &fakeNotifier{}
	svc := NewService(st, notifier)

	res, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)

	assert.True(t, res.Baselined)
	assert.Empty(t, res.NewlyUnlocked)
	assert.Empty(t, notifier.all(), "historical unlocks must not notify")
	assert.Equal(t,
		[]string{achievement.FirstEntry, achievement.Streak3, achievement.FirstHappy, achievement.FirstCalm, achievement.FirstChat},
		st.baselines["u1"].Unlocked)
}

func TestRefreshPublishesOnlyTheDelta(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.chats["u1"] = 1
	notifier := &fakeNotifier{}
	svc := NewService(st, notifier)

	_, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, st.baselines["u1"].Unlocked)

	st.addMood("u1", "2024-01-01", domain.MoodHappy)
	res, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Baselined)
	require.Len(t, res.NewlyUnlocked, 2)
	assert.Equal(t, achievement.FirstEntry, res.NewlyUnlocked[0].ID)
	assert.Equal(t, achievement.FirstHappy, res.NewlyUnlocked[1].ID)

	// Nothing changed: no duplicate notification.
	res, err = svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, res.NewlyUnlocked)

	st.mu.Lock()
	st.chats["u1"] = 2
	st.mu.Unlock()
	res, err = svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, res.NewlyUnlocked, 1)
	assert.Equal(t, achievement.FirstChat, res.NewlyUnlocked[0].ID)

	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, published{userID: "u1", ids: []string{achievement.FirstEntry, achievement.FirstHappy}}, events[0])
	assert.Equal(t, published{userID: "u1", ids: []string{achievement.FirstChat}}, events[1])
}

func TestRefreshConcurrentCallsNotifyOnce(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(st, notifier)

	_, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	st.addMood("u1", "2024-02-01", domain.MoodCalm)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Refresh(ctx, "u1")
		}()
	}
	wg.Wait()

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{achievement.FirstEntry, achievement.FirstCalm}, events[0].ids)
}

func TestForgetDuringRefreshKeepsCallsSerialized(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(st, notifier)

	_, err := svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	st.addMood("u1", "2024-02-01", domain.MoodHappy)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Refresh(ctx, "u1")
		}()
		go func() {
			defer wg.Done()
			svc.Forget("u1")
		}()
	}
	wg.Wait()

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{achievement.FirstEntry, achievement.FirstHappy}, events[0].ids)
}

func TestRefreshUsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(st, notifier)

	_, err := svc.Refresh(ctx, "a")
	require.NoError(t, err)
	st.addMood("a", "2024-01-01", domain.MoodNeutral)
	st.addMood("b", "2024-01-01", domain.MoodNeutral)

	_, err = svc.Refresh(ctx, "a")
	require.NoError(t, err)
	res, err := svc.Refresh(ctx, "b")
	require.NoError(t, err)

	assert.True(t, res.Baselined)
	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].userID)
}

func TestRefreshStoreErrorLeavesBaseline(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.listErr = errors.New("disk on fire")
	svc := NewService(st, nil)

	_, err := svc.Refresh(ctx, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load mood log")
	assert.Nil(t, st.baselines["u1"])
}

func TestStatusesDoesNotTouchBaseline(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.addMood("u1", "2024-01-01", domain.MoodCalm)
	svc := NewService(st, &fakeNotifier{})

	statuses, err := svc.Statuses(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, statuses, len(achievement.Catalog()))
	assert.Equal(t, []string{achievement.FirstEntry, achievement.FirstCalm}, achievement.UnlockedIDs(statuses))
	assert.Nil(t, st.baselines["u1"])
}
