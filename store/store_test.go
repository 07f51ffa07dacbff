package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/qianlnk/onenight/models"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *models.Snapshot {
	masked := models.Villager
	return &models.Snapshot{
		SessionID: "s1",
		Definition: models.GameDefinition{
			Roles: map[models.Role]models.RoleSpec{
				models.Werewolf:  {DaySide: models.WerewolfSide, WinSide: models.WerewolfSide, Ability: models.AbilityNone},
				models.WhiteWolf: {DaySide: models.WerewolfSide, WinSide: models.WerewolfSide, Ability: models.AbilityNone, MaskedDivinationRole: &masked},
				models.Seer:      {DaySide: models.VillageSide, WinSide: models.VillageSide, Ability: models.AbilityDivination, NightOrder: 2},
			},
			RoleDistribution: []models.Role{models.Werewolf, models.WhiteWolf, models.Seer},
			Phases:           []string{models.PhaseNight, models.PhaseDay, models.PhaseVote, models.PhaseResult},
		},
		World: models.WorldState{
			Phase:   models.PhaseDay,
			Players: []string{"alice", "bob", "carol"},
			PublicEvents: []models.GameEvent{
				{ID: "e1", Kind: models.EventNightStarted, Phase: models.PhaseNight},
			},
			PendingEvents: []models.GameEvent{
				{ID: "e2", Kind: models.EventSpeech, Actor: "bob", Content: "carol is a wolf", Target: "carol"},
			},
		},
		Players: map[string]models.PlayerState{
			"alice": {Memory: models.PlayerMemory{
				Self:     "alice",
				SelfRole: models.Seer,
				Beliefs: models.Beliefs{
					"alice": {models.Seer: 1},
					"bob":   {models.Werewolf: 0.5, models.WhiteWolf: 0.5},
				},
				SpeechReview: models.Pending[models.Speech]{Active: true, Passes: 2, Draft: models.Speech{Text: "hm"}},
			}},
		},
		Assigned: models.AssignedRoles{"alice": models.Seer, "bob": models.Werewolf, "carol": models.WhiteWolf},
		GM: models.GMInternalState{
			VotePending: []string{"alice", "bob", "carol"},
			Votes:       map[string]string{},
			EventCursor: 1,
			CommentReview: models.Pending[models.ModeratorComment]{
				Active: true, Passes: 1, Draft: models.ModeratorComment{Speaker: "bob", Text: "bob?"},
			},
		},
	}
}

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	snap := sampleSnapshot()
	require.NoError(t, s.Save(ctx, "s1", snap, 0))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, "s1", sampleSnapshot(), time.Minute))
	_, err := s.Get(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	s := NewRedisStoreFromClient(client, WithPrefix("test:"))

	snap := sampleSnapshot()
	require.NoError(t, s.Save(ctx, "s1", snap, time.Hour))
	assert.True(t, mr.Exists("test:s1"))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestRedisStore_NotFoundAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	s := NewRedisStoreFromClient(client)

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, s.Save(ctx, "s1", sampleSnapshot(), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	s := NewRedisStoreFromClient(client)

	require.NoError(t, s.Save(ctx, "s1", sampleSnapshot(), 0))
	require.NoError(t, s.Delete(ctx, "s1"))
	assert.False(t, mr.Exists(defaultPrefix+"s1"))
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredis(t)
	locker := NewRedisLocker(client, "test:")

	unlock, err := locker.Lock(ctx, "s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:s1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:s1"))
}

func TestRedisLocker_Contention(t *testing.T) {
	ctx := context.Background()
	_, client := newMiniredis(t)
	first := NewRedisLocker(client, "test:")
	second := NewRedisLocker(client, "test:")

	unlock, err := first.Lock(ctx, "s1", 5*time.Second)
	require.NoError(t, err)

	timeout, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = second.Lock(timeout, "s1", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))
	unlock2, err := second.Lock(ctx, "s1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestGameRecord_RoundTrip(t *testing.T) {
	result := &models.GameResult{
		Winner:   models.VillageSide,
		Executed: []string{"bob", "carol"},
		Winners:  []string{"alice"},
		Votes:    map[string]int{"bob": 2, "carol": 2},
		Roles:    map[string]models.Role{"alice": models.Seer, "bob": models.Werewolf, "carol": models.Villager},
	}
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))

	rec, err := newGameRecord("s1", result, finished)
	require.NoError(t, err)
	assert.Equal(t, "village", rec.Winner)
	assert.Equal(t, "bob,carol", rec.Executed)
	assert.Equal(t, time.UTC, rec.FinishedAt.Location())

	back, err := rec.result()
	require.NoError(t, err)
	assert.Equal(t, result, back)
}

func TestGameRecord_NoResult(t *testing.T) {
	_, err := newGameRecord("s1", nil, time.Now())
	assert.Error(t, err)
}

func TestGameRecord_EmptyExecuted(t *testing.T) {
	rec, err := newGameRecord("s1", &models.GameResult{Winner: models.WerewolfSide, Votes: map[string]int{}, Roles: map[string]models.Role{}}, time.Now())
	require.NoError(t, err)
	back, err := rec.result()
	require.NoError(t, err)
	assert.Empty(t, back.Executed)
}
