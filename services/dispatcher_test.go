package services

import (
	"context"
	"testing"

	"github.com/qianlnk/onenight/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBeliefs counts belief calls per player and records how many events
// each call saw and how many the player had already observed.
func recordingBeliefs(c *counter, seen map[string][]int, fail string) Generator[BeliefContext, models.Beliefs] {
	return GeneratorFunc[BeliefContext, models.Beliefs](func(_ context.Context, in BeliefContext) (models.Beliefs, error) {
		c.inc(in.Memory.Self)
		c.mu.Lock()
		seen[in.Memory.Self] = append(seen[in.Memory.Self], len(in.Events), len(in.Memory.ObservedEvents))
		c.mu.Unlock()
		if in.Memory.Self == fail {
			return nil, errBoom
		}
		b := in.Memory.Beliefs.Clone()
		for p := range b {
			b[p] = map[models.Role]float64{models.Werewolf: 2}
		}
		return b, nil
	})
}

func TestDispatch_EventsBeforeRequestsBeforePhase(t *testing.T) {
	s := dealtSession(t, []string{"a", "b", "c"}, []models.Role{models.Villager, models.Werewolf, models.Seer})
	s.world.Phase = models.PhaseDay
	ctx := context.Background()

	comment := newEvent(models.EventModeratorComment, models.PhaseDay)
	comment.Content = "a, go ahead"
	err := s.Dispatch(ctx, models.Decision{
		Events:    []models.GameEvent{comment},
		Requests:  []models.RequestEntry{{Player: "a", Request: models.PlayerRequest{Action: models.ActionSpeak}}},
		NextPhase: models.PhaseVote,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PhaseVote, s.Phase())
	require.Len(t, s.world.PublicEvents, 1)
	assert.Equal(t, comment.ID, s.world.PublicEvents[0].ID)
	assert.Equal(t, 1, s.gm.EventCursor)

	// the speech was resolved while the phase was still day
	require.Len(t, s.world.PendingEvents, 1)
	speech := s.world.PendingEvents[0]
	assert.Equal(t, models.EventSpeech, speech.Kind)
	assert.Equal(t, models.PhaseDay, speech.Phase)
	assert.Equal(t, "a", speech.Actor)

	// the speaker heard the comment before answering
	a, _ := s.Player("a")
	require.NotEmpty(t, a.Memory.ObservedEvents)
	assert.Equal(t, comment.ID, a.Memory.ObservedEvents[0].ID)
	assert.Equal(t, 1, a.Memory.SummaryCursor)
}

func TestDispatch_FlushesPendingFirst(t *testing.T) {
	s := dealtSession(t, []string{"a", "b", "c"}, []models.Role{models.Villager, models.Werewolf, models.Seer})
	s.world.Phase = models.PhaseDay
	ctx := context.Background()

	staged := newEvent(models.EventSpeech, models.PhaseDay)
	staged.Actor = "a"
	staged.Content = "hello"
	s.world.PendingEvents = append(s.world.PendingEvents, staged)

	closing := newEvent(models.EventModeratorClosing, models.PhaseDay)
	require.NoError(t, s.Dispatch(ctx, models.Decision{Events: []models.GameEvent{closing}}))

	require.Len(t, s.world.PublicEvents, 2)
	assert.Equal(t, staged.ID, s.world.PublicEvents[0].ID)
	assert.Equal(t, closing.ID, s.world.PublicEvents[1].ID)
	assert.Empty(t, s.world.PendingEvents)
	assert.Equal(t, 2, s.gm.EventCursor)

	for _, p := range []string{"a", "b", "c"} {
		st, _ := s.Player(p)
		require.Len(t, st.Memory.ObservedEvents, 2)
		assert.Equal(t, staged.ID, st.Memory.ObservedEvents[0].ID)
	}
}

func TestDispatch_BroadcastBatchSharesOneBeliefUpdate(t *testing.T) {
	calls := newCounter()
	seen := map[string][]int{}
	collab := DefaultPlayerCollaborators(testDefinition(models.Villager, models.Werewolf, models.Seer))
	collab.Beliefs = recordingBeliefs(calls, seen, "")

	s := dealtSession(t, []string{"a", "b", "c"}, []models.Role{models.Villager, models.Werewolf, models.Seer},
		WithPlayerCollaborators(collab), WithBeliefConcurrency(2))
	s.world.Phase = models.PhaseDay

	comment := newEvent(models.EventModeratorComment, models.PhaseDay)
	closing := newEvent(models.EventModeratorClosing, models.PhaseDay)
	require.NoError(t, s.Dispatch(context.Background(), models.Decision{Events: []models.GameEvent{comment, closing}}))

	for _, p := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, calls.get(p), "belief calls for %s", p)
		// two events in the batch, both already observed
		assert.Equal(t, []int{2, 2}, seen[p])

		st, _ := s.Player(p)
		assertBeliefInvariants(t, st)
		for other, dist := range st.Memory.Beliefs {
			if other != p {
				assert.Equal(t, map[models.Role]float64{models.Werewolf: 1}, dist)
			}
		}
	}
}

func TestDispatch_NonBroadcastEventSplitsBatch(t *testing.T) {
	calls := newCounter()
	seen := map[string][]int{}
	collab := DefaultPlayerCollaborators(testDefinition(models.Villager, models.Werewolf))
	collab.Beliefs = recordingBeliefs(calls, seen, "")

	s := dealtSession(t, []string{"a", "b"}, []models.Role{models.Villager, models.Werewolf}, WithPlayerCollaborators(collab))
	s.world.Phase = models.PhaseDay

	first := newEvent(models.EventModeratorComment, models.PhaseDay)
	vote := newEvent(models.EventVoteStarted, models.PhaseDay)
	last := newEvent(models.EventModeratorComment, models.PhaseDay)
	require.NoError(t, s.Dispatch(context.Background(), models.Decision{Events: []models.GameEvent{first, vote, last}}))

	// vote_started is not informative, so only the two one-event batches revise beliefs
	assert.Equal(t, 2, calls.get("a"))
	assert.Equal(t, []int{1, 1, 1, 3}, seen["a"])

	a, _ := s.Player("a")
	ids := []string{}
	for _, ev := range a.Memory.ObservedEvents {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{first.ID, vote.ID, last.ID}, ids)
}

func TestDispatch_BeliefFailureIsLocal(t *testing.T) {
	calls := newCounter()
	seen := map[string][]int{}
	collab := DefaultPlayerCollaborators(testDefinition(models.Villager, models.Werewolf, models.Seer))
	collab.Beliefs = recordingBeliefs(calls, seen, "b")

	s := dealtSession(t, []string{"a", "b", "c"}, []models.Role{models.Villager, models.Werewolf, models.Seer}, WithPlayerCollaborators(collab))
	s.world.Phase = models.PhaseDay
	before, _ := s.Player("b")

	comment := newEvent(models.EventModeratorComment, models.PhaseDay)
	require.NoError(t, s.Dispatch(context.Background(), models.Decision{Events: []models.GameEvent{comment}}))

	b, _ := s.Player("b")
	assert.Equal(t, before.Memory.Beliefs, b.Memory.Beliefs)
	assert.Len(t, b.Memory.ObservedEvents, 1)
	assertBeliefInvariants(t, b)

	a, _ := s.Player("a")
	assert.Equal(t, map[models.Role]float64{models.Werewolf: 1}, a.Memory.Beliefs["b"])
}

func TestDispatch_ContractViolations(t *testing.T) {
	ctx := context.Background()

	t.Run("private event in decision", func(t *testing.T) {
		s := dealtSession(t, []string{"a", "b"}, []models.Role{models.Seer, models.Werewolf})
		ev := newEvent(models.EventDivinationResult, models.PhaseNight)
		err := s.Dispatch(ctx, models.Decision{Events: []models.GameEvent{ev}})
		assert.ErrorIs(t, err, ErrContractViolation)
		assert.Empty(t, s.world.PublicEvents)
	})

	t.Run("unknown next phase", func(t *testing.T) {
		s := dealtSession(t, []string{"a", "b"}, []models.Role{models.Seer, models.Werewolf})
		err := s.Dispatch(ctx, models.Decision{NextPhase: "dusk"})
		assert.ErrorIs(t, err, ErrUnknownPhase)
		assert.Equal(t, models.PhaseNight, s.Phase())
	})

	t.Run("request for unknown player", func(t *testing.T) {
		s := dealtSession(t, []string{"a", "b"}, []models.Role{models.Seer, models.Werewolf})
		err := s.Dispatch(ctx, models.Decision{Requests: []models.RequestEntry{{Player: "zed", Request: models.PlayerRequest{Action: models.ActionVote}}}})
		assert.ErrorIs(t, err, ErrUnknownPlayer)
	})

	t.Run("unknown request", func(t *testing.T) {
		s := dealtSession(t, []string{"a", "b"}, []models.Role{models.Seer, models.Werewolf})
		err := s.Dispatch(ctx, models.Decision{Requests: []models.RequestEntry{{Player: "a", Request: models.PlayerRequest{Action: "dance"}}}})
		assert.ErrorIs(t, err, ErrUnknownRequest)
	})
}

func TestDispatch_ResultStampedOnce(t *testing.T) {
	s := dealtSession(t, []string{"a", "b"}, []models.Role{models.Villager, models.Werewolf})
	s.world.Phase = models.PhaseResult
	ctx := context.Background()

	first := newEvent(models.EventGameEnd, models.PhaseResult)
	first.Result = &models.GameResult{Winner: models.VillageSide}
	second := newEvent(models.EventGameEnd, models.PhaseResult)
	second.Result = &models.GameResult{Winner: models.WerewolfSide}

	require.NoError(t, s.Dispatch(ctx, models.Decision{Events: []models.GameEvent{first}}))
	require.NoError(t, s.Dispatch(ctx, models.Decision{Events: []models.GameEvent{second}}))

	require.NotNil(t, s.Result())
	assert.Equal(t, models.VillageSide, s.Result().Winner)
}

func TestDispatch_EmptyDecisionChangesNothing(t *testing.T) {
	s := dealtSession(t, []string{"a", "b"}, []models.Role{models.Villager, models.Werewolf})
	before := s.Snapshot()
	require.NoError(t, s.Dispatch(context.Background(), models.Decision{}))
	assert.Equal(t, before, s.Snapshot())
}
